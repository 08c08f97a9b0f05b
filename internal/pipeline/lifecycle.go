package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"atelier/internal/logging"
	"atelier/internal/notifications"
	"atelier/internal/services"
	"atelier/internal/store"
)

// Manager owns run lifecycle: creating runs, claiming and executing them,
// cancelling them, and reporting their status.
type Manager struct {
	store    *store.Store
	engine   *Engine
	notifier notifications.Service
	logger   *slog.Logger
}

// RunStatus pairs a run with its step records.
type RunStatus struct {
	Run   *store.Run
	Steps []*store.RunStep
}

// NewManager wires the run lifecycle over an engine.
func NewManager(st *store.Store, engine *Engine, notifier notifications.Service, logger *slog.Logger) (*Manager, error) {
	if st == nil {
		return nil, errors.New("pipeline manager: store required")
	}
	if engine == nil {
		return nil, errors.New("pipeline manager: engine required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{store: st, engine: engine, notifier: notifier, logger: logger}, nil
}

// CreateRun enqueues a pending run for the account. Inactive accounts are
// refused, and an account with a live run reports services.ErrConflict.
func (m *Manager) CreateRun(ctx context.Context, accountID int64, trigger store.Trigger) (*store.Run, error) {
	account, err := m.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, services.Wrap(services.ErrValidation, "", "create_run",
			fmt.Sprintf("account %q is disabled", account.Handle), nil)
	}
	run, err := m.store.CreateRun(ctx, accountID, trigger)
	if err != nil {
		return nil, err
	}
	m.logger.Info("run created",
		logging.Int64(logging.FieldRunID, run.ID),
		logging.Int64(logging.FieldAccountID, accountID),
		logging.String("trigger", string(trigger)))
	return run, nil
}

// ExecuteRun claims a pending run and drives it to a terminal state. A run
// that is not pending reports services.ErrInvalidState.
func (m *Manager) ExecuteRun(ctx context.Context, runID int64) (Disposition, error) {
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return DispositionFailed, err
	}

	claimed, err := m.store.ClaimRun(ctx, runID)
	if err != nil {
		return DispositionFailed, err
	}
	if !claimed {
		return DispositionFailed, services.Wrap(services.ErrInvalidState, "", "execute_run",
			fmt.Sprintf("run %d is not pending", runID), nil)
	}

	account, err := m.store.GetAccount(ctx, run.AccountID)
	if err != nil {
		return DispositionFailed, err
	}
	settings, err := m.store.AccountSettings(ctx, run.AccountID)
	if err != nil {
		return DispositionFailed, err
	}

	ctx = services.WithAccountID(ctx, run.AccountID)
	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithRequestID(ctx, uuid.NewString())

	rc := Context{
		AccountID: run.AccountID,
		RunID:     runID,
		Settings:  *settings,
	}

	disposition, err := m.engine.Execute(ctx, run, rc)
	if err != nil {
		return disposition, err
	}

	final, err := m.store.GetRun(context.WithoutCancel(ctx), runID)
	if err != nil {
		return disposition, err
	}

	switch disposition {
	case DispositionCompleted:
		if err := m.store.TouchAccountLastRun(context.WithoutCancel(ctx), run.AccountID); err != nil {
			return disposition, err
		}
		m.publish(ctx, notifications.EventRunCompleted, notifications.Payload{
			"account":   account.Handle,
			"scraped":   strconv.Itoa(final.ItemsScraped),
			"generated": strconv.Itoa(final.ItemsGenerated),
			"scheduled": strconv.Itoa(final.PostsScheduled),
		})
	case DispositionFailed:
		m.publish(ctx, notifications.EventRunFailed, notifications.Payload{
			"account": account.Handle,
			"step":    string(final.ErrorStep),
			"error":   final.ErrorMessage,
		})
	}

	m.logger.Info("run finished",
		logging.Int64(logging.FieldRunID, runID),
		logging.Int64(logging.FieldAccountID, run.AccountID),
		logging.String("disposition", disposition.String()))
	return disposition, nil
}

// CancelRun requests cancellation. A pending run is cancelled immediately; a
// running run stops before its next step.
func (m *Manager) CancelRun(ctx context.Context, runID int64) error {
	if err := m.store.CancelRun(ctx, runID); err != nil {
		return err
	}
	m.logger.Info("run cancel requested", logging.Int64(logging.FieldRunID, runID))
	return nil
}

// RunStatus reports a run together with its step history.
func (m *Manager) RunStatus(ctx context.Context, runID int64) (*RunStatus, error) {
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	steps, err := m.store.RunSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunStatus{Run: run, Steps: steps}, nil
}

// LatestRun reports the most recent run for an account, or nil when the
// account has never run.
func (m *Manager) LatestRun(ctx context.Context, accountID int64) (*store.Run, error) {
	return m.store.LatestRun(ctx, accountID)
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		m.logger.Warn("notification publish failed",
			logging.String(logging.FieldEventType, string(event)),
			logging.Error(err))
	}
}
