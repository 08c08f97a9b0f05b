package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"atelier/internal/config"
	"atelier/internal/logging"
	"atelier/internal/notifications"
	"atelier/internal/pipeline"
	"atelier/internal/preflight"
	"atelier/internal/store"
	"atelier/internal/worker"
)

// Daemon coordinates background run processing and enforces single-instance
// execution via a lock file in the log directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	worker  *worker.Worker
	trigger *worker.TriggerScheduler
	manager *pipeline.Manager
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DBPath       string
	LockFilePath string
	Preflight    []preflight.Result
}

// New constructs a daemon around an already-opened store.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "atelierd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, recovers orphaned runs, and launches the
// worker lanes and the cron trigger when enabled.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another atelier daemon instance is already running")
	}

	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			d.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}

	orphaned, err := d.store.FailOrphanedRuns(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover orphaned runs: %w", err)
	}
	if orphaned > 0 {
		d.logger.Warn("failed orphaned runs from previous session", logging.Int("count", orphaned))
	}

	daemonCtx, cancel := context.WithCancel(ctx)

	steps, err := buildStepSet(daemonCtx, d.cfg, d.store, d.notifier, d.logger)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("build step handlers: %w", err)
	}
	engine, err := pipeline.NewEngine(d.store, steps, d.logger)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("build engine: %w", err)
	}
	manager, err := pipeline.NewManager(d.store, engine, d.notifier, d.logger)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("build run manager: %w", err)
	}

	w := worker.New(d.cfg, d.store, manager, d.logger)
	if err := w.Start(daemonCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start worker: %w", err)
	}

	var trigger *worker.TriggerScheduler
	if d.cfg.Triggers.CronEnabled {
		trigger, err = worker.NewTriggerScheduler(d.cfg.Triggers.CronSpec, d.store, manager, d.logger)
		if err != nil {
			w.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start trigger scheduler: %w", err)
		}
		trigger.Start()
	}

	d.cancel = cancel
	d.worker = w
	d.trigger = trigger
	d.manager = manager
	d.running.Store(true)
	d.logger.Info("atelier daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the trigger scheduler and worker lanes and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.trigger != nil {
		d.trigger.Stop()
		d.trigger = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.worker != nil {
		d.worker.Stop()
		d.worker = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.manager = nil
	d.running.Store(false)
	d.logger.Info("atelier daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// TriggerAll queues scheduled runs for active accounts immediately.
func (d *Daemon) TriggerAll(ctx context.Context) error {
	if !d.running.Load() || d.trigger == nil {
		return errors.New("trigger scheduler is not running")
	}
	return d.trigger.TriggerAll(ctx)
}

// Status returns the current daemon status, including preflight results.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
		Preflight:    preflight.RunAll(ctx, d.cfg),
	}
}
