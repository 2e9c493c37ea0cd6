// Package admin implements the stats and backup operations exposed
// under /api/admin, and the AdminDisabled gate that protects them in
// production unless explicitly overridden.
package admin

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hadv/ethaura-passkeys/internal/apierror"
	"github.com/hadv/ethaura-passkeys/internal/log"
	"github.com/hadv/ethaura-passkeys/internal/metrics"
	"github.com/hadv/ethaura-passkeys/internal/store"
)

// Config gates whether admin operations are reachable at all.
type Config struct {
	// Enabled allows admin endpoints to run. Defaults to true outside
	// production; in production it must be explicitly set.
	Enabled bool
	// DBPath is reported verbatim in Stats.
	DBPath string
	// BackupDir is where Backup writes its timestamped snapshot.
	BackupDir string
}

// Admin implements the stats/backup pair.
type Admin struct {
	cfg     Config
	storage store.Storage
	metrics *metrics.Metrics
	logger  log.Logger
}

// New constructs an Admin.
func New(cfg Config, storage store.Storage, m *metrics.Metrics, logger log.Logger) *Admin {
	return &Admin{cfg: cfg, storage: storage, metrics: m, logger: logger}
}

// Stats mirrors the admin/telemetry response shape.
type Stats struct {
	TotalCredentials int64      `json:"total_credentials"`
	OldestCredential *time.Time `json:"oldest_credential"`
	NewestCredential *time.Time `json:"newest_credential"`
	QueryCount       int64      `json:"queryCount"`
	ErrorCount       int64      `json:"errorCount"`
	LastBackupTime   *time.Time `json:"lastBackupTime"`
	DBPath           string     `json:"dbPath"`
}

// Stats returns the process-lifetime telemetry snapshot.
func (a *Admin) Stats(ctx context.Context) (Stats, error) {
	if err := a.checkEnabled(); err != nil {
		return Stats{}, err
	}

	total, err := a.storage.CountDevices(ctx)
	if err != nil {
		return Stats{}, err
	}
	oldest, newest, err := a.storage.OldestNewestDevice(ctx)
	if err != nil {
		return Stats{}, err
	}

	var lastBackup *time.Time
	if t := a.metrics.LastBackupTime(); !t.IsZero() {
		lastBackup = &t
	}

	return Stats{
		TotalCredentials: total,
		OldestCredential: oldest,
		NewestCredential: newest,
		QueryCount:       a.metrics.QueryCount(),
		ErrorCount:       a.metrics.ErrorCount(),
		LastBackupTime:   lastBackup,
		DBPath:           a.cfg.DBPath,
	}, nil
}

// BackupResult is returned by Backup.
type BackupResult struct {
	Path       string    `json:"path"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Backup synchronously invokes the storage engine's backup primitive
// and stamps lastBackupTime on success. It is gated by Config.Enabled,
// since it is reachable via the admin API.
func (a *Admin) Backup(ctx context.Context) (BackupResult, error) {
	if err := a.checkEnabled(); err != nil {
		return BackupResult{}, err
	}
	return a.doBackup(ctx)
}

// ScheduledBackup runs the same backup as Backup but bypasses the
// admin-disabled gate: the scheduler's periodic timer must keep
// producing backups even when the manual admin endpoint is disabled in
// production.
func (a *Admin) ScheduledBackup(ctx context.Context) (BackupResult, error) {
	return a.doBackup(ctx)
}

func (a *Admin) doBackup(ctx context.Context) (BackupResult, error) {
	now := time.Now().UTC()
	dest := filepath.Join(a.cfg.BackupDir, fmt.Sprintf("passkeys-%s.db", rfc3339NoColons(now)))

	if err := a.storage.Backup(ctx, dest); err != nil {
		return BackupResult{}, apierror.Wrap(apierror.CodeFatal, "backup failed", err)
	}

	a.metrics.RecordBackup(now)
	a.logger.Infof("backup written to %s", dest)
	return BackupResult{Path: dest, FinishedAt: now}, nil
}

func (a *Admin) checkEnabled() error {
	if !a.cfg.Enabled {
		return apierror.New(apierror.CodeAdminDisabled, "admin endpoints are disabled")
	}
	return nil
}

func rfc3339NoColons(t time.Time) string {
	out := make([]byte, 0, 20)
	for _, r := range t.Format(time.RFC3339) {
		if r == ':' {
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}
