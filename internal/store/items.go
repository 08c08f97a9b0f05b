package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const itemColumns = "id, account_id, source_id, post_url, carousel_pos, carousel_total, media_url, mime_type, posted_at, status, vet_score, description, generated_path, caption, tags_json, created_at, updated_at"

// InsertItem records a scraped item. Items are deduplicated on
// (post_url, carousel_pos); an item already seen reports duplicate=true and
// is not modified.
func (s *Store) InsertItem(ctx context.Context, item *Item) (bool, error) {
	now := nowTimestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (
            account_id, source_id, post_url, carousel_pos, carousel_total,
            media_url, mime_type, posted_at, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (post_url, carousel_pos) DO NOTHING`,
		item.AccountID,
		item.SourceID,
		item.PostURL,
		item.CarouselPos,
		item.CarouselTotal,
		item.MediaURL,
		nullableString(item.MimeType),
		nullableTime(item.PostedAt),
		ItemPending,
		now,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return true, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	item.ID = id
	item.Status = ItemPending
	return false, nil
}

// GetItem loads an item by id.
func (s *Store) GetItem(ctx context.Context, itemID int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM items WHERE id = ?", itemColumns), itemID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ItemsPendingVet returns the account's oldest unvetted items, at most limit
// of them. A limit of zero or less returns the whole backlog.
func (s *Store) ItemsPendingVet(ctx context.Context, accountID int64, limit int) ([]*Item, error) {
	query := fmt.Sprintf("SELECT %s FROM items WHERE account_id = ? AND status = ? ORDER BY id ASC", itemColumns)
	args := []any{accountID, ItemPending}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryItems(ctx, query, args...)
}

// SetItemVetResult stores the vet score and resulting status.
func (s *Store) SetItemVetResult(ctx context.Context, itemID int64, score float64, status ItemStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET vet_score = ?, status = ?, updated_at = ? WHERE id = ?`,
		score, status, nowTimestamp(), itemID)
	if err != nil {
		return fmt.Errorf("set vet result: %w", err)
	}
	return nil
}

// ApprovedItemsWithoutDescription returns approved items awaiting a
// description, ordered so carousel frames of the same post stay adjacent.
func (s *Store) ApprovedItemsWithoutDescription(ctx context.Context, accountID int64) ([]*Item, error) {
	return s.queryItems(ctx,
		fmt.Sprintf(`SELECT %s FROM items
            WHERE account_id = ? AND status = ? AND (description IS NULL OR description = '')
            ORDER BY post_url ASC, carousel_pos ASC`, itemColumns),
		accountID, ItemApproved)
}

// SetItemDescription stores the vision description for an item.
func (s *Store) SetItemDescription(ctx context.Context, itemID int64, description string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET description = ?, updated_at = ? WHERE id = ?`,
		description, nowTimestamp(), itemID)
	if err != nil {
		return fmt.Errorf("set description: %w", err)
	}
	return nil
}

// DescribedItemsWithoutGenerated returns approved, described items that have
// no generated image yet.
func (s *Store) DescribedItemsWithoutGenerated(ctx context.Context, accountID int64) ([]*Item, error) {
	return s.queryItems(ctx,
		fmt.Sprintf(`SELECT %s FROM items
            WHERE account_id = ? AND status = ?
              AND description IS NOT NULL AND description != ''
              AND (generated_path IS NULL OR generated_path = '')
            ORDER BY id ASC`, itemColumns),
		accountID, ItemApproved)
}

// SetItemGenerated stores the path of the synthesized image.
func (s *Store) SetItemGenerated(ctx context.Context, itemID int64, path string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET generated_path = ?, updated_at = ? WHERE id = ?`,
		path, nowTimestamp(), itemID)
	if err != nil {
		return fmt.Errorf("set generated path: %w", err)
	}
	return nil
}

// GeneratedItemsWithoutCaption returns items with a generated image but no
// caption text.
func (s *Store) GeneratedItemsWithoutCaption(ctx context.Context, accountID int64) ([]*Item, error) {
	return s.queryItems(ctx,
		fmt.Sprintf(`SELECT %s FROM items
            WHERE account_id = ? AND status = ?
              AND generated_path IS NOT NULL AND generated_path != ''
              AND (caption IS NULL OR caption = '')
            ORDER BY id ASC`, itemColumns),
		accountID, ItemApproved)
}

// SetItemCaption stores the caption and its tag list.
func (s *Store) SetItemCaption(ctx context.Context, itemID int64, caption, tagsJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET caption = ?, tags_json = ?, updated_at = ? WHERE id = ?`,
		caption, nullableString(tagsJSON), nowTimestamp(), itemID)
	if err != nil {
		return fmt.Errorf("set caption: %w", err)
	}
	return nil
}

// SchedulableItems returns items with a generated image that have not been
// placed on the posting schedule.
func (s *Store) SchedulableItems(ctx context.Context, accountID int64) ([]*Item, error) {
	return s.queryItems(ctx,
		fmt.Sprintf(`SELECT %s FROM items
            WHERE account_id = ? AND status = ?
              AND generated_path IS NOT NULL AND generated_path != ''
              AND id NOT IN (SELECT item_id FROM scheduled_posts)
            ORDER BY id ASC`, itemColumns),
		accountID, ItemApproved)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id            int64
		accountID     int64
		sourceID      int64
		postURL       string
		carouselPos   int
		carouselTotal int
		mediaURL      string
		mimeType      sql.NullString
		postedRaw     sql.NullString
		statusStr     string
		vetScore      sql.NullFloat64
		description   sql.NullString
		generatedPath sql.NullString
		caption       sql.NullString
		tagsJSON      sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&accountID,
		&sourceID,
		&postURL,
		&carouselPos,
		&carouselTotal,
		&mediaURL,
		&mimeType,
		&postedRaw,
		&statusStr,
		&vetScore,
		&description,
		&generatedPath,
		&caption,
		&tagsJSON,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:            id,
		AccountID:     accountID,
		SourceID:      sourceID,
		PostURL:       postURL,
		CarouselPos:   carouselPos,
		CarouselTotal: carouselTotal,
		MediaURL:      mediaURL,
		MimeType:      mimeType.String,
		Status:        ItemStatus(statusStr),
		Description:   description.String,
		GeneratedPath: generatedPath.String,
		Caption:       caption.String,
		TagsJSON:      tagsJSON.String,
	}
	if vetScore.Valid {
		score := vetScore.Float64
		item.VetScore = &score
	}
	item.PostedAt = timePtr(postedRaw.String)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}
