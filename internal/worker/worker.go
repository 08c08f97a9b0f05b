package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"atelier/internal/config"
	"atelier/internal/logging"
	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/store"
)

// Worker runs pending runs on a fixed number of lanes.
type Worker struct {
	store              *store.Store
	manager            *pipeline.Manager
	logger             *slog.Logger
	lanes              int
	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight map[int64]struct{}
}

// Option adjusts worker behavior.
type Option func(*Worker)

// WithPollInterval overrides how long an idle lane sleeps between polls.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithErrorRetryInterval overrides the backoff after a queue fetch error.
func WithErrorRetryInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.errorRetryInterval = d
		}
	}
}

// WithLanes overrides the number of concurrent lanes.
func WithLanes(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.lanes = n
		}
	}
}

// New builds a worker from the workflow configuration.
func New(cfg *config.Config, st *store.Store, manager *pipeline.Manager, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Worker{
		store:              st,
		manager:            manager,
		logger:             logging.NewComponentLogger(logger, "worker"),
		lanes:              cfg.Workflow.RunLanes,
		pollInterval:       time.Duration(cfg.Workflow.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		inflight:           make(map[int64]struct{}),
	}
	if w.lanes < 1 {
		w.lanes = 1
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.errorRetryInterval <= 0 {
		w.errorRetryInterval = w.pollInterval
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the lane goroutines. It is an error to start a worker twice
// without stopping it first.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("%w: worker already running", services.ErrInvalidState)
	}

	laneCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	for lane := 1; lane <= w.lanes; lane++ {
		w.wg.Add(1)
		go func(lane int) {
			defer w.wg.Done()
			w.runLane(laneCtx, lane)
		}(lane)
	}
	w.logger.Info("worker started", logging.Int("lanes", w.lanes))
	return nil
}

// Stop cancels all lanes and waits for in-flight runs to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) runLane(ctx context.Context, lane int) {
	logger := w.logger.With(logging.Int("lane", lane))
	logger.Debug("lane started")

	for {
		if ctx.Err() != nil {
			logger.Debug("lane shutting down")
			return
		}

		run, err := w.nextRun(ctx)
		if err != nil {
			logger.Error("failed to fetch next run", logging.Error(err))
			if !w.sleep(ctx, w.errorRetryInterval) {
				return
			}
			continue
		}
		if run == nil {
			if !w.sleep(ctx, w.pollInterval) {
				return
			}
			continue
		}

		w.execute(ctx, logger, run)
	}
}

// nextRun fetches the oldest pending run whose account is not already being
// served by another lane, and reserves the account when one is found.
func (w *Worker) nextRun(ctx context.Context) (*store.Run, error) {
	w.mu.Lock()
	exclude := make([]int64, 0, len(w.inflight))
	for id := range w.inflight {
		exclude = append(exclude, id)
	}
	w.mu.Unlock()

	run, err := w.store.NextPendingRun(ctx, exclude)
	if err != nil || run == nil {
		return nil, err
	}
	if !w.reserve(run.AccountID) {
		// Another lane grabbed the account between the query and the
		// reservation. Let that lane have it.
		return nil, nil
	}
	return run, nil
}

func (w *Worker) execute(ctx context.Context, logger *slog.Logger, run *store.Run) {
	defer w.release(run.AccountID)

	logger.Info("executing run",
		logging.Int64(logging.FieldRunID, run.ID),
		logging.Int64(logging.FieldAccountID, run.AccountID))

	disposition, err := w.manager.ExecuteRun(ctx, run.ID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidState) {
			// The run was claimed or cancelled out from under us.
			logger.Debug("run no longer pending", logging.Int64(logging.FieldRunID, run.ID))
			return
		}
		logger.Error("run execution failed",
			logging.Int64(logging.FieldRunID, run.ID),
			logging.Error(err))
		return
	}

	logger.Info("run finished",
		logging.Int64(logging.FieldRunID, run.ID),
		logging.String("disposition", disposition.String()))
}

func (w *Worker) reserve(accountID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[accountID]; busy {
		return false
	}
	w.inflight[accountID] = struct{}{}
	return true
}

func (w *Worker) release(accountID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, accountID)
}

// sleep waits for d or until ctx is cancelled. It reports whether the lane
// should keep running.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
