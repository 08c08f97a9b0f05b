package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"atelier/internal/logging"
	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/store"
)

// TriggerScheduler creates scheduled runs for every active account on a cron
// cadence. Accounts that already have a live run are skipped; the next tick
// picks them up again.
type TriggerScheduler struct {
	cron    *cron.Cron
	store   *store.Store
	manager *pipeline.Manager
	logger  *slog.Logger
}

// NewTriggerScheduler validates spec and registers the trigger job. The
// returned scheduler is idle until Start is called.
func NewTriggerScheduler(spec string, st *store.Store, manager *pipeline.Manager, logger *slog.Logger) (*TriggerScheduler, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	ts := &TriggerScheduler{
		cron:    cron.New(),
		store:   st,
		manager: manager,
		logger:  logging.NewComponentLogger(logger, "trigger"),
	}
	if _, err := ts.cron.AddFunc(spec, func() {
		if err := ts.TriggerAll(context.Background()); err != nil {
			ts.logger.Error("scheduled trigger failed", logging.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("%w: invalid cron spec %q: %w", services.ErrConfiguration, spec, err)
	}
	return ts, nil
}

// Start begins firing the cron schedule in a background goroutine.
func (ts *TriggerScheduler) Start() {
	ts.cron.Start()
	ts.logger.Info("trigger scheduler started")
}

// Stop halts the schedule and waits for a running trigger to finish.
func (ts *TriggerScheduler) Stop() {
	<-ts.cron.Stop().Done()
	ts.logger.Info("trigger scheduler stopped")
}

// TriggerAll queues a scheduled run for each active account. Accounts with a
// pending or running run are left alone.
func (ts *TriggerScheduler) TriggerAll(ctx context.Context) error {
	accounts, err := ts.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	var queued int
	for _, account := range accounts {
		if !account.Active {
			continue
		}
		run, err := ts.manager.CreateRun(ctx, account.ID, store.TriggerScheduled)
		if err != nil {
			if errors.Is(err, services.ErrConflict) {
				ts.logger.Debug("account already has a live run",
					logging.Int64(logging.FieldAccountID, account.ID))
				continue
			}
			ts.logger.Error("failed to queue scheduled run",
				logging.Int64(logging.FieldAccountID, account.ID),
				logging.Error(err))
			continue
		}
		queued++
		ts.logger.Info("queued scheduled run",
			logging.Int64(logging.FieldAccountID, account.ID),
			logging.Int64(logging.FieldRunID, run.ID))
	}
	if queued > 0 {
		ts.logger.Info("scheduled trigger complete", logging.Int("queued", queued))
	}
	return nil
}
