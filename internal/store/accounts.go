package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"atelier/internal/services"
)

const accountColumns = "id, handle, active, last_run_at, created_at"
const sourceColumns = "id, account_id, handle, active, created_at"

// CreateAccount registers a managed account with default settings.
func (s *Store) CreateAccount(ctx context.Context, handle string) (*Account, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create_account", "handle is required", nil)
	}
	now := nowTimestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin account tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (handle, active, created_at) VALUES (?, 1, ?)`,
		handle, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, "", "create_account",
				fmt.Sprintf("account %q already exists", handle), nil)
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account_settings (account_id) VALUES (?)`, id); err != nil {
		return nil, fmt.Errorf("insert settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit account tx: %w", err)
	}
	return s.GetAccount(ctx, id)
}

// GetAccount loads an account by id. Missing accounts return services.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM accounts WHERE id = ?", accountColumns), accountID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get_account",
			fmt.Sprintf("account %d", accountID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// GetAccountByHandle loads an account by its handle.
func (s *Store) GetAccountByHandle(ctx context.Context, handle string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM accounts WHERE handle = ?", accountColumns), handle)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get_account",
			fmt.Sprintf("account %q", handle), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get account by handle: %w", err)
	}
	return account, nil
}

// ListAccounts returns every account ordered by handle.
func (s *Store) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM accounts ORDER BY handle ASC", accountColumns))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// SetAccountActive enables or disables the account for future runs.
func (s *Store) SetAccountActive(ctx context.Context, accountID int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET active = ? WHERE id = ?`, boolToInt(active), accountID)
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	return nil
}

// TouchAccountLastRun records when the account last completed a run.
func (s *Store) TouchAccountLastRun(ctx context.Context, accountID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_run_at = ? WHERE id = ?`, nowTimestamp(), accountID)
	if err != nil {
		return fmt.Errorf("touch last run: %w", err)
	}
	return nil
}

// AddSource attaches an upstream handle for the account to scrape.
func (s *Store) AddSource(ctx context.Context, accountID int64, handle string) (*Source, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, services.Wrap(services.ErrValidation, "", "add_source", "handle is required", nil)
	}
	now := nowTimestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (account_id, handle, active, created_at) VALUES (?, ?, 1, ?)`,
		accountID, handle, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, "", "add_source",
				fmt.Sprintf("source %q already tracked for account %d", handle, accountID), nil)
		}
		return nil, fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM sources WHERE id = ?", sourceColumns), id)
	source, err := scanSource(row)
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	return source, nil
}

// ActiveSources returns the account's enabled sources.
func (s *Store) ActiveSources(ctx context.Context, accountID int64) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM sources WHERE account_id = ? AND active = 1 ORDER BY handle ASC", sourceColumns),
		accountID)
	if err != nil {
		return nil, fmt.Errorf("active sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []*Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

// SetSourceActive enables or disables a source.
func (s *Store) SetSourceActive(ctx context.Context, sourceID int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET active = ? WHERE id = ?`, boolToInt(active), sourceID)
	if err != nil {
		return fmt.Errorf("set source active: %w", err)
	}
	return nil
}

// AccountSettings loads the account's pipeline settings.
func (s *Store) AccountSettings(ctx context.Context, accountID int64) (*Settings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT account_id, vet_threshold, generation_provider, reference_image_path,
                aspect_ratio, image_size, caption_style, post_times
         FROM account_settings WHERE account_id = ?`, accountID)

	var (
		settings  Settings
		postTimes string
	)
	err := row.Scan(
		&settings.AccountID,
		&settings.VetThreshold,
		&settings.GenerationProvider,
		&settings.ReferenceImagePath,
		&settings.AspectRatio,
		&settings.ImageSize,
		&settings.CaptionStyle,
		&postTimes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "account_settings",
			fmt.Sprintf("settings for account %d", accountID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("account settings: %w", err)
	}
	settings.PostTimes = splitPostTimes(postTimes)
	return &settings, nil
}

// SaveAccountSettings replaces the account's pipeline settings.
func (s *Store) SaveAccountSettings(ctx context.Context, settings *Settings) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE account_settings SET
            vet_threshold = ?, generation_provider = ?, reference_image_path = ?,
            aspect_ratio = ?, image_size = ?, caption_style = ?, post_times = ?
         WHERE account_id = ?`,
		settings.VetThreshold,
		settings.GenerationProvider,
		settings.ReferenceImagePath,
		settings.AspectRatio,
		settings.ImageSize,
		settings.CaptionStyle,
		strings.Join(settings.PostTimes, ","),
		settings.AccountID,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func splitPostTimes(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	times := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			times = append(times, part)
		}
	}
	return times
}

func scanAccount(scanner interface{ Scan(dest ...any) error }) (*Account, error) {
	var (
		id         int64
		handle     string
		active     int
		lastRunRaw sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &handle, &active, &lastRunRaw, &createdRaw); err != nil {
		return nil, err
	}
	account := &Account{ID: id, Handle: handle, Active: active != 0}
	account.LastRunAt = timePtr(lastRunRaw.String)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		account.CreatedAt = created
	}
	return account, nil
}

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	var (
		id         int64
		accountID  int64
		handle     string
		active     int
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &accountID, &handle, &active, &createdRaw); err != nil {
		return nil, err
	}
	source := &Source{ID: id, AccountID: accountID, Handle: handle, Active: active != 0}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		source.CreatedAt = created
	}
	return source, nil
}
