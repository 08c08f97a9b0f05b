package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"atelier/internal/services"
)

const runColumns = "id, account_id, status, triggered_by, current_step, items_scraped, items_validated, items_generated, posts_scheduled, error_step, error_message, started_at, completed_at, created_at"

// CreateRun inserts a pending run for the account along with its full set of
// pending steps. Only one pending or running run may exist per account; a
// second attempt returns services.ErrConflict.
func (s *Store) CreateRun(ctx context.Context, accountID int64, trigger Trigger) (*Run, error) {
	now := nowTimestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (account_id, status, triggered_by, created_at) VALUES (?, ?, ?, ?)`,
		accountID, RunPending, trigger, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, "", "create_run",
				fmt.Sprintf("account %d already has an active run", accountID), nil)
		}
		return nil, fmt.Errorf("insert run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, name := range StepOrder {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_steps (run_id, name, status, created_at) VALUES (?, ?, ?, ?)`,
			runID, name, StepPending, now,
		); err != nil {
			return nil, fmt.Errorf("insert step %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run tx: %w", err)
	}

	return s.GetRun(ctx, runID)
}

// ClaimRun atomically moves a pending run to running. It reports false when
// the run was not pending, which means another lane claimed it first or the
// run already finished.
func (s *Store) ClaimRun(ctx context.Context, runID int64) (bool, error) {
	now := nowTimestamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, current_step = ?, started_at = ? WHERE id = ? AND status = ?`,
		RunRunning, StepScrape, now, runID, RunPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// GetRun loads a run by id. Missing runs return services.ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM runs WHERE id = ?", runColumns), runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get_run", fmt.Sprintf("run %d", runID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recent run for an account, or nil when the
// account has never run.
func (s *Store) LatestRun(ctx context.Context, accountID int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM runs WHERE account_id = ? ORDER BY id DESC LIMIT 1", runColumns),
		accountID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs for an account, newest first, up to limit.
func (s *Store) ListRuns(ctx context.Context, accountID int64, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM runs WHERE account_id = ? ORDER BY id DESC LIMIT ?", runColumns),
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRuns(rows)
}

// NextPendingRun returns the oldest pending run whose account is not in the
// exclude set, or nil when none is waiting.
func (s *Store) NextPendingRun(ctx context.Context, excludeAccounts []int64) (*Run, error) {
	query := fmt.Sprintf("SELECT %s FROM runs WHERE status = ?", runColumns)
	args := []any{RunPending}
	if len(excludeAccounts) > 0 {
		query += fmt.Sprintf(" AND account_id NOT IN (%s)", makePlaceholders(len(excludeAccounts)))
		for _, id := range excludeAccounts {
			args = append(args, id)
		}
	}
	query += " ORDER BY id ASC LIMIT 1"

	row := s.db.QueryRowContext(ctx, query, args...)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending run: %w", err)
	}
	return run, nil
}

// SetRunCurrentStep records the step a running run is about to execute.
func (s *Store) SetRunCurrentStep(ctx context.Context, runID int64, step StepName) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET current_step = ? WHERE id = ?`, step, runID)
	if err != nil {
		return fmt.Errorf("set current step: %w", err)
	}
	return nil
}

// UpdateRunCounters persists the run's aggregate item counts.
func (s *Store) UpdateRunCounters(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET items_scraped = ?, items_validated = ?, items_generated = ?, posts_scheduled = ? WHERE id = ?`,
		run.ItemsScraped, run.ItemsValidated, run.ItemsGenerated, run.PostsScheduled, run.ID)
	if err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}
	return nil
}

// CompleteRun marks a running run as completed.
func (s *Store) CompleteRun(ctx context.Context, runID int64) error {
	now := nowTimestamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, current_step = NULL, completed_at = ? WHERE id = ? AND status = ?`,
		RunCompleted, now, runID, RunRunning)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return requireTransition(res, runID, "complete_run")
}

// FailRun marks a running run as failed, recording the step that broke it.
func (s *Store) FailRun(ctx context.Context, runID int64, step StepName, message string) error {
	now := nowTimestamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_step = ?, error_message = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)`,
		RunFailed, step, message, now, runID, RunRunning, RunPending)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return requireTransition(res, runID, "fail_run")
}

// CancelRun marks a pending or running run as cancelled. A running run is
// only observed as cancelled between steps.
func (s *Store) CancelRun(ctx context.Context, runID int64) error {
	now := nowTimestamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)`,
		RunCancelled, now, runID, RunPending, RunRunning)
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return requireTransition(res, runID, "cancel_run")
}

// FailOrphanedRuns fails every run left in a non-terminal state, together with
// its unfinished steps. Called at daemon startup to recover from crashes.
func (s *Store) FailOrphanedRuns(ctx context.Context) (int, error) {
	now := nowTimestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin orphan tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE run_steps SET status = ?, error_message = ?, completed_at = ?
         WHERE status IN (?, ?) AND run_id IN (SELECT id FROM runs WHERE status IN (?, ?))`,
		StepFailed, OrphanStopReason, now,
		StepPending, StepRunning, RunPending, RunRunning,
	); err != nil {
		return 0, fmt.Errorf("fail orphaned steps: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, completed_at = ? WHERE status IN (?, ?)`,
		RunFailed, OrphanStopReason, now, RunPending, RunRunning)
	if err != nil {
		return 0, fmt.Errorf("fail orphaned runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit orphan tx: %w", err)
	}
	return int(affected), nil
}

func requireTransition(res sql.Result, runID int64, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrInvalidState, "", operation,
			fmt.Sprintf("run %d is not in a state that allows this transition", runID), nil)
	}
	return nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id           int64
		accountID    int64
		statusStr    string
		triggerStr   string
		currentStep  sql.NullString
		scraped      int
		validated    int
		generated    int
		scheduled    int
		errorStep    sql.NullString
		errorMessage sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&accountID,
		&statusStr,
		&triggerStr,
		&currentStep,
		&scraped,
		&validated,
		&generated,
		&scheduled,
		&errorStep,
		&errorMessage,
		&startedRaw,
		&completedRaw,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:             id,
		AccountID:      accountID,
		Status:         RunStatus(statusStr),
		Trigger:        Trigger(triggerStr),
		CurrentStep:    StepName(currentStep.String),
		ItemsScraped:   scraped,
		ItemsValidated: validated,
		ItemsGenerated: generated,
		PostsScheduled: scheduled,
		ErrorStep:      StepName(errorStep.String),
		ErrorMessage:   errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		run.CreatedAt = created
	}
	run.StartedAt = timePtr(startedRaw.String)
	run.CompletedAt = timePtr(completedRaw.String)
	return run, nil
}

func collectRuns(rows *sql.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
