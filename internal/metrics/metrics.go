// Package metrics holds the process-lifetime counters described in the
// data model: queryCount, errorCount, lastBackupTime. Counters are plain
// atomics, mirroring Design Notes' "avoid unbounded histogram structures -
// the source tracks only totals".
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks process-lifetime counters and also registers them with a
// prometheus.Registry so the same totals are visible on /metrics.
type Metrics struct {
	queryCount     atomic.Int64
	errorCount     atomic.Int64
	lastBackupUnix atomic.Int64 // unix seconds, 0 = never

	queryCounter  prometheus.Counter
	errorCounter  prometheus.Counter
	lastBackupGau prometheus.Gauge
}

// New creates a Metrics instance and registers its collectors with reg.
// reg may be nil, in which case only the in-process counters are kept.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		queryCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passkeys_storage_queries_total",
			Help: "Total number of storage queries that succeeded.",
		}),
		errorCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passkeys_storage_errors_total",
			Help: "Total number of storage queries that failed.",
		}),
		lastBackupGau: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "passkeys_last_backup_unixtime",
			Help: "Unix timestamp of the last successful backup, 0 if none yet.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.queryCounter, m.errorCounter, m.lastBackupGau)
	}
	return m
}

// RecordQuery increments the success or failure counter for a storage call.
func (m *Metrics) RecordQuery(err error) {
	if err != nil {
		m.errorCount.Add(1)
		m.errorCounter.Inc()
		return
	}
	m.queryCount.Add(1)
	m.queryCounter.Inc()
}

// RecordBackup stamps the last-backup time to at.
func (m *Metrics) RecordBackup(at time.Time) {
	m.lastBackupUnix.Store(at.Unix())
	m.lastBackupGau.Set(float64(at.Unix()))
}

// QueryCount returns the lifetime successful-query count.
func (m *Metrics) QueryCount() int64 { return m.queryCount.Load() }

// ErrorCount returns the lifetime failed-query count.
func (m *Metrics) ErrorCount() int64 { return m.errorCount.Load() }

// LastBackupTime returns the last backup time, or the zero Time if none.
func (m *Metrics) LastBackupTime() time.Time {
	sec := m.lastBackupUnix.Load()
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
