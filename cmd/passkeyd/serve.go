package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hadv/ethaura-passkeys/internal/admin"
	"github.com/hadv/ethaura-passkeys/internal/api"
	"github.com/hadv/ethaura-passkeys/internal/devices"
	"github.com/hadv/ethaura-passkeys/internal/gateway"
	"github.com/hadv/ethaura-passkeys/internal/mds"
	"github.com/hadv/ethaura-passkeys/internal/metrics"
	"github.com/hadv/ethaura-passkeys/internal/scheduler"
	"github.com/hadv/ethaura-passkeys/internal/sessions"
	"github.com/hadv/ethaura-passkeys/internal/store"
)

func commandServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the passkey credential authority server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.NodeEnv)
	startedAt := time.Now().UTC()

	if err := os.MkdirAll(cfg.BackupDir, 0o750); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	storage, err := store.Config{File: cfg.DatabasePath}.Open(logger, m)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	mdsCache := mds.New(storage, cfg.MDSURL, mds.TrustTLSOnly{}, logger)
	if err := mdsCache.LoadFromStorage(context.Background()); err != nil {
		logger.Warnf("mds: failed to load persisted cache: %v", err)
	}

	registry := devices.New(storage, mdsCache, logger)
	sessionStore := sessions.New(storage, logger)
	adminSvc := admin.New(admin.Config{
		Enabled:   cfg.AdminBackupEnabled,
		DBPath:    cfg.DatabasePath,
		BackupDir: cfg.BackupDir,
	}, storage, m, logger)

	rateLimiter := gateway.NewIPRateLimiter()
	corsCfg := gateway.CORSConfig{
		FrontendOrigin: cfg.FrontendURL,
		Development:    cfg.NodeEnv != "production",
	}

	handler := api.New(api.Config{
		Devices:     registry,
		Sessions:    sessionStore,
		Admin:       adminSvc,
		Recoverer:   gateway.EthRecoverer{},
		RateLimiter: rateLimiter,
		CORS:        corsCfg,
		Logger:      logger,
		Now:         func() time.Time { return time.Now().UTC() },
		StartedAt:   startedAt,
	})

	healthChecker := gosundheit.New()
	if err := healthChecker.RegisterCheck(&gosundheit.Config{
		Check: &checks.CustomCheck{
			CheckName: "storage",
			CheckFunc: store.NewCustomHealthCheckFunc(storage),
		},
		ExecutionPeriod:  15 * time.Second,
		InitiallyPassing: true,
	}); err != nil {
		return fmt.Errorf("register health check: %w", err)
	}

	var gr run.Group

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: handler}
	httpListener, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", httpSrv.Addr, err)
	}
	gr.Add(func() error {
		logger.Infof("listening on %s", httpSrv.Addr)
		return httpSrv.Serve(httpListener)
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Errorf("http shutdown: %v", err)
		}
	})

	telemetryMux := http.NewServeMux()
	telemetryMux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	telemetrySrv := &http.Server{Addr: ":9090", Handler: telemetryMux}
	telemetryListener, err := net.Listen("tcp", telemetrySrv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", telemetrySrv.Addr, err)
	}
	gr.Add(func() error {
		logger.Infof("telemetry listening on %s", telemetrySrv.Addr)
		return telemetrySrv.Serve(telemetryListener)
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetrySrv.Shutdown(ctx); err != nil {
			logger.Errorf("telemetry shutdown: %v", err)
		}
	})

	sched := scheduler.New(scheduler.Config{
		BackupInterval:     cfg.backupInterval(),
		MDSRefreshInterval: cfg.mdsRefreshInterval(),
		SessionGCInterval:  cfg.sessionGCInterval(),
	}, storage, adminSvc, mdsCache, sessionStore, rateLimiter, logger)
	sched.Register(context.Background(), &gr)

	if err := gr.Run(); err != nil {
		if _, ok := err.(run.SignalError); !ok {
			_ = sched.Close()
			return fmt.Errorf("run groups: %w", err)
		}
		logger.Infof("%v, shutting down", err)
	}

	if err := sched.Close(); err != nil {
		logger.Errorf("storage close: %v", err)
		os.Exit(1)
	}
	return nil
}
