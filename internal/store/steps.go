package store

import (
	"context"
	"database/sql"
	"fmt"
)

const stepColumns = "id, run_id, name, status, output_json, error_message, started_at, completed_at, created_at"

// RunSteps returns every step of a run in execution order.
func (s *Store) RunSteps(ctx context.Context, runID int64) ([]*RunStep, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM run_steps WHERE run_id = ? ORDER BY id ASC", stepColumns),
		runID)
	if err != nil {
		return nil, fmt.Errorf("query run steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []*RunStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// StartStep marks a step running.
func (s *Store) StartStep(ctx context.Context, runID int64, name StepName) error {
	now := nowTimestamp()
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_steps SET status = ?, started_at = ? WHERE run_id = ? AND name = ?`,
		StepRunning, now, runID, name)
	if err != nil {
		return fmt.Errorf("start step %s: %w", name, err)
	}
	return nil
}

// CompleteStep marks a step completed and stores its output summary.
func (s *Store) CompleteStep(ctx context.Context, runID int64, name StepName, outputJSON string) error {
	now := nowTimestamp()
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_steps SET status = ?, output_json = ?, completed_at = ? WHERE run_id = ? AND name = ?`,
		StepCompleted, nullableString(outputJSON), now, runID, name)
	if err != nil {
		return fmt.Errorf("complete step %s: %w", name, err)
	}
	return nil
}

// SkipStep marks a step skipped with the reason it had nothing to do.
func (s *Store) SkipStep(ctx context.Context, runID int64, name StepName, reason string) error {
	now := nowTimestamp()
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_steps SET status = ?, error_message = ?, completed_at = ? WHERE run_id = ? AND name = ?`,
		StepSkipped, nullableString(reason), now, runID, name)
	if err != nil {
		return fmt.Errorf("skip step %s: %w", name, err)
	}
	return nil
}

// FailStep marks a step failed with the error that stopped it.
func (s *Store) FailStep(ctx context.Context, runID int64, name StepName, message string) error {
	now := nowTimestamp()
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_steps SET status = ?, error_message = ?, completed_at = ? WHERE run_id = ? AND name = ?`,
		StepFailed, nullableString(message), now, runID, name)
	if err != nil {
		return fmt.Errorf("fail step %s: %w", name, err)
	}
	return nil
}

func scanStep(scanner interface{ Scan(dest ...any) error }) (*RunStep, error) {
	var (
		id           int64
		runID        int64
		nameStr      string
		statusStr    string
		outputJSON   sql.NullString
		errorMessage sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&runID,
		&nameStr,
		&statusStr,
		&outputJSON,
		&errorMessage,
		&startedRaw,
		&completedRaw,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	step := &RunStep{
		ID:           id,
		RunID:        runID,
		Name:         StepName(nameStr),
		Status:       StepStatus(statusStr),
		OutputJSON:   outputJSON.String,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		step.CreatedAt = created
	}
	step.StartedAt = timePtr(startedRaw.String)
	step.CompletedAt = timePtr(completedRaw.String)
	return step, nil
}
