package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"atelier/internal/logging"
	"atelier/internal/services"
	"atelier/internal/store"
)

// Disposition reports how a run ended.
type Disposition int

const (
	DispositionCompleted Disposition = iota
	DispositionFailed
	DispositionCancelled
)

func (d Disposition) String() string {
	switch d {
	case DispositionCompleted:
		return "completed"
	case DispositionFailed:
		return "failed"
	case DispositionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Engine drives a claimed run through every pipeline step, persisting step
// status and run counters as it goes.
type Engine struct {
	store  *store.Store
	steps  StepSet
	logger *slog.Logger
}

// NewEngine builds an engine over the given step set.
func NewEngine(st *store.Store, steps StepSet, logger *slog.Logger) (*Engine, error) {
	if st == nil {
		return nil, errors.New("pipeline engine: store required")
	}
	if err := steps.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline engine: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{store: st, steps: steps, logger: logger}, nil
}

// Execute runs every step of an already-claimed run in order. The returned
// error reports persistence failures only; step failures are recorded on the
// run and surface as DispositionFailed. Handlers are never preempted:
// cancellation is observed between steps, or when a handler returns an error
// after its context was cancelled.
func (e *Engine) Execute(ctx context.Context, run *store.Run, rc Context) (Disposition, error) {
	// Status writes must land even when ctx is cancelled mid-step, otherwise
	// a shutdown would strand the run in running.
	persist := context.WithoutCancel(ctx)

	for _, bound := range e.steps.ordered() {
		current, err := e.store.GetRun(persist, run.ID)
		if err != nil {
			return DispositionFailed, fmt.Errorf("reload run %d: %w", run.ID, err)
		}
		if current.Status == store.RunCancelled {
			e.logger.Info("run cancelled, stopping",
				logging.Int64(logging.FieldRunID, run.ID),
				logging.String(logging.FieldStep, string(bound.name)))
			return DispositionCancelled, nil
		}
		if ctx.Err() != nil {
			if err := e.store.CancelRun(persist, run.ID); err != nil && !errors.Is(err, services.ErrInvalidState) {
				return DispositionCancelled, fmt.Errorf("cancel run %d: %w", run.ID, err)
			}
			return DispositionCancelled, nil
		}

		if err := e.store.SetRunCurrentStep(persist, run.ID, bound.name); err != nil {
			return DispositionFailed, err
		}
		if err := e.store.StartStep(persist, run.ID, bound.name); err != nil {
			return DispositionFailed, err
		}

		stepCtx := services.WithStep(ctx, string(bound.name))
		stepLogger := e.logger.With(
			logging.Int64(logging.FieldRunID, run.ID),
			logging.String(logging.FieldStep, string(bound.name)))
		stepLogger.Info("step started")

		outcome, stepErr := bound.handler.Run(stepCtx, rc)
		if stepErr != nil {
			if err := e.store.FailStep(persist, run.ID, bound.name, stepErr.Error()); err != nil {
				return DispositionFailed, err
			}
			if ctx.Err() != nil {
				// The step aborted because of shutdown or cancellation, not
				// because the work itself failed.
				stepLogger.Info("step interrupted", logging.Error(stepErr))
				if err := e.store.CancelRun(persist, run.ID); err != nil && !errors.Is(err, services.ErrInvalidState) {
					return DispositionCancelled, fmt.Errorf("cancel run %d: %w", run.ID, err)
				}
				return DispositionCancelled, nil
			}
			stepLogger.Error("step failed", logging.Error(stepErr))
			if err := e.store.FailRun(persist, run.ID, bound.name, stepErr.Error()); err != nil {
				return DispositionFailed, err
			}
			return DispositionFailed, nil
		}

		if outcome.Skipped {
			stepLogger.Info("step skipped", logging.String("reason", outcome.SkipReason))
			if err := e.store.SkipStep(persist, run.ID, bound.name, outcome.SkipReason); err != nil {
				return DispositionFailed, err
			}
			continue
		}

		outputJSON := ""
		if outcome.Output != nil {
			encoded, err := json.Marshal(outcome.Output)
			if err != nil {
				return DispositionFailed, fmt.Errorf("encode %s output: %w", bound.name, err)
			}
			outputJSON = string(encoded)
		}
		if err := e.store.CompleteStep(persist, run.ID, bound.name, outputJSON); err != nil {
			return DispositionFailed, err
		}
		if outcome.Output != nil {
			outcome.Output.applyCounters(run)
			if err := e.store.UpdateRunCounters(persist, run); err != nil {
				return DispositionFailed, err
			}
		}
		rc = rc.apply(outcome.Delta)
		stepLogger.Info("step completed")
	}

	if err := e.store.CompleteRun(persist, run.ID); err != nil {
		return DispositionFailed, err
	}
	return DispositionCompleted, nil
}
