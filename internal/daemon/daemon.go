package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/routine-minder/minder/internal/api"
	"github.com/routine-minder/minder/internal/app/engagement"
	"github.com/routine-minder/minder/internal/app/routine"
	"github.com/routine-minder/minder/internal/dates"
	"github.com/routine-minder/minder/internal/domain"
	"github.com/routine-minder/minder/internal/health"
	"github.com/routine-minder/minder/internal/infra/memstore"
	"github.com/routine-minder/minder/internal/infra/metrics"
	"github.com/routine-minder/minder/internal/infra/postgres"
	"github.com/routine-minder/minder/internal/infra/sqlite"
	"github.com/routine-minder/minder/internal/logger"
)

const syncJob = "achievement_sync"

// Daemon is the Routine Minder runtime. It wires together all services.
type Daemon struct {
	Config   Config
	Store    domain.Store
	Routines *routine.Service
	Stats    *engagement.Service
	Server   *api.Server
	Health   *health.Checker
	Cron     *cron.Cron

	now    func() time.Time
	cancel context.CancelFunc
}

// New loads the config file and creates a Daemon from it.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	routines := routine.NewService(store)
	stats := engagement.NewService(store, engagement.NewEngine(cfg.EngineConfig()))

	srv := api.NewServer(routines, stats, store)
	srv.SetCORSOrigins(cfg.Server.CORSOrigins)
	if p, err := engagement.ParsePeriod(cfg.Stats.DefaultRange); err == nil {
		srv.SetDefaultPeriod(p)
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	dataDir := ""
	if cfg.Storage.Driver == DriverSQLite {
		dataDir = cfg.Storage.Dir
	}
	checker := health.NewChecker(store, dataDir)
	srv.SetHealth(checker)

	d := &Daemon{
		Config:   cfg,
		Store:    store,
		Routines: routines,
		Stats:    stats,
		Server:   srv,
		Health:   checker,
		Cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		now: time.Now,
	}

	if cfg.Jobs.Enabled {
		if _, err := d.Cron.AddFunc(cfg.Jobs.SyncSchedule, d.runSync); err != nil {
			store.Close()
			return nil, fmt.Errorf("schedule %s: %w", syncJob, err)
		}
	}
	return d, nil
}

// OpenStore opens the backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg StorageConfig) (domain.Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		db, err := sqlite.Open(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	case DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return pg, nil
	case DriverMemory:
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// SetClock overrides the clock Today reads. Used by tests.
func (d *Daemon) SetClock(now func() time.Time) { d.now = now }

// Today returns the current calendar day in the user's configured timezone.
func (d *Daemon) Today(ctx context.Context) (string, error) {
	st, err := d.Store.GetSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	loc, err := dates.LoadLocation(st.Timezone)
	if err != nil {
		return "", err
	}
	return dates.Today(d.now(), loc), nil
}

// Sync runs the achievement and best-streak sync for today.
func (d *Daemon) Sync(ctx context.Context) ([]domain.AchievementDef, error) {
	today, err := d.Today(ctx)
	if err != nil {
		return nil, err
	}
	return d.Stats.Sync(ctx, today)
}

// runSync is the cron entry point for the sync job.
func (d *Daemon) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	unlocked, err := d.Sync(ctx)
	if err != nil {
		metrics.JobRuns.WithLabelValues(syncJob, "error").Inc()
		logger.Error("scheduled job failed", "job", syncJob, "err", err)
		return
	}
	metrics.JobRuns.WithLabelValues(syncJob, "ok").Inc()
	logger.Info("scheduled job done", "job", syncJob,
		"unlocked", len(unlocked), "took", time.Since(start).Round(time.Millisecond))
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Health checker (always runs)
	go d.Health.Run(ctx)

	if d.Config.Jobs.Enabled {
		d.Cron.Start()
	}

	addr := net.JoinHostPort(d.Config.Server.Host, strconv.Itoa(d.Config.Server.Port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		cancel()
		<-d.Cron.Stop().Done()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("serving", "addr", addr, "driver", d.Config.Storage.Driver,
		"metrics", d.Config.Telemetry.Prometheus, "sync", d.Config.Jobs.SyncSchedule)
	fmt.Printf("Routine Minder serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	err := httpServer.ListenAndServe()
	// A failed listen must still release the checker, cron and signal handler.
	cancel()
	<-stopped
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Cron != nil {
		d.Cron.Stop()
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			logger.Warn("close store", "err", err)
		}
	}
}
