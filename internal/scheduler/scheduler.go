// Package scheduler drives the periodic background tasks (backup, MDS
// refresh, session GC) and registers the graceful-shutdown actor,
// wiring everything through a single oklog/run.Group so cancellation is
// uniform across HTTP listeners and timers.
package scheduler

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/run"

	"github.com/hadv/ethaura-passkeys/internal/admin"
	"github.com/hadv/ethaura-passkeys/internal/gateway"
	"github.com/hadv/ethaura-passkeys/internal/log"
	"github.com/hadv/ethaura-passkeys/internal/mds"
	"github.com/hadv/ethaura-passkeys/internal/sessions"
	"github.com/hadv/ethaura-passkeys/internal/store"
)

// Config controls the timer periods. Zero values fall back to the
// spec's defaults.
type Config struct {
	BackupInterval    time.Duration // default 24h
	MDSRefreshInterval time.Duration // default 24h
	SessionGCInterval  time.Duration // default 5m
}

func (c Config) withDefaults() Config {
	if c.BackupInterval == 0 {
		c.BackupInterval = 24 * time.Hour
	}
	if c.MDSRefreshInterval == 0 {
		c.MDSRefreshInterval = 24 * time.Hour
	}
	if c.SessionGCInterval == 0 {
		c.SessionGCInterval = 5 * time.Minute
	}
	return c
}

// Scheduler owns the periodic actors and the idempotent shutdown of
// the storage engine.
type Scheduler struct {
	cfg Config

	storage     store.Storage
	admin       *admin.Admin
	mdsCache    *mds.Cache
	sessions    *sessions.Store
	rateLimiter *gateway.IPRateLimiter
	logger      log.Logger

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Scheduler.
func New(cfg Config, storage store.Storage, a *admin.Admin, mdsCache *mds.Cache, sess *sessions.Store, rl *gateway.IPRateLimiter, logger log.Logger) *Scheduler {
	return &Scheduler{
		cfg:         cfg.withDefaults(),
		storage:     storage,
		admin:       a,
		mdsCache:    mdsCache,
		sessions:    sess,
		rateLimiter: rl,
		logger:      logger,
	}
}

// Register adds every periodic actor plus the OS signal handler to gr.
// Each actor/interrupt pair is cancelled together with every other actor
// the moment any one of them returns, exactly like the per-listener
// actors registered around it.
func (s *Scheduler) Register(ctx context.Context, gr *run.Group) {
	s.registerTimer(gr, "backup", s.cfg.BackupInterval, s.runBackup)
	s.registerTimer(gr, "mds-refresh", s.cfg.MDSRefreshInterval, s.runMDSRefresh)
	s.registerTimer(gr, "session-gc", s.cfg.SessionGCInterval, s.runSessionGC)

	gr.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
}

func (s *Scheduler) registerTimer(gr *run.Group, name string, interval time.Duration, fn func(context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(interval)

	gr.Add(func() error {
		// Run once at startup, matching the MDS refresh contract; the
		// other two timers also run at startup, so every boot writes a
		// backup and runs one session-GC pass.
		fn(ctx)
		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}, func(error) {
		s.logger.Debugf("stopping %s timer", name)
		ticker.Stop()
		cancel()
	})
}

func (s *Scheduler) runBackup(ctx context.Context) {
	if _, err := s.admin.ScheduledBackup(ctx); err != nil {
		s.logger.Warnf("scheduled backup failed: %v", err)
	}
}

func (s *Scheduler) runMDSRefresh(ctx context.Context) {
	s.mdsCache.Refresh(ctx)
}

func (s *Scheduler) runSessionGC(ctx context.Context) {
	if _, err := s.sessions.CleanupExpired(ctx); err != nil {
		s.logger.Warnf("session gc failed: %v", err)
		return
	}
	if s.rateLimiter != nil {
		s.rateLimiter.EvictIdle(time.Now().UTC())
	}
}

// Close closes the storage engine exactly once, so repeated shutdown
// signals are a no-op after the first.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.storage.Close()
	})
	return s.closeErr
}
