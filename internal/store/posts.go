package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"atelier/internal/services"
)

const postColumns = "id, account_id, item_id, caption, image_path, scheduled_for, status, created_at"

// CreateScheduledPost queues a generated image for publication. Each item can
// be scheduled at most once.
func (s *Store) CreateScheduledPost(ctx context.Context, post *ScheduledPost) (*ScheduledPost, error) {
	now := nowTimestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_posts (account_id, item_id, caption, image_path, scheduled_for, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.AccountID,
		post.ItemID,
		post.Caption,
		post.ImagePath,
		post.ScheduledFor.UTC().Format(time.RFC3339Nano),
		PostQueued,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, "", "create_scheduled_post",
				fmt.Sprintf("item %d is already scheduled", post.ItemID), nil)
		}
		return nil, fmt.Errorf("insert scheduled post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetScheduledPost(ctx, id)
}

// GetScheduledPost loads a scheduled post by id.
func (s *Store) GetScheduledPost(ctx context.Context, postID int64) (*ScheduledPost, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM scheduled_posts WHERE id = ?", postColumns), postID)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get_scheduled_post",
			fmt.Sprintf("post %d", postID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled post: %w", err)
	}
	return post, nil
}

// LastScheduledFor reports the latest queued slot time for the account, or
// the zero time when nothing is queued.
func (s *Store) LastScheduledFor(ctx context.Context, accountID int64) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(scheduled_for) FROM scheduled_posts WHERE account_id = ? AND status = ?`,
		accountID, PostQueued).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("last scheduled slot: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse scheduled slot: %w", err)
	}
	return t, nil
}

// UpcomingPosts returns queued posts for the account ordered by slot time.
func (s *Store) UpcomingPosts(ctx context.Context, accountID int64, limit int) ([]*ScheduledPost, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM scheduled_posts WHERE account_id = ? AND status = ? ORDER BY scheduled_for ASC LIMIT ?", postColumns),
		accountID, PostQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []*ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// SetPostStatus moves a scheduled post to a new publication state.
func (s *Store) SetPostStatus(ctx context.Context, postID int64, status PostStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET status = ? WHERE id = ?`, status, postID)
	if err != nil {
		return fmt.Errorf("set post status: %w", err)
	}
	return nil
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (*ScheduledPost, error) {
	var (
		id           int64
		accountID    int64
		itemID       int64
		caption      string
		imagePath    string
		scheduledRaw string
		statusStr    string
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &accountID, &itemID, &caption, &imagePath, &scheduledRaw, &statusStr, &createdRaw); err != nil {
		return nil, err
	}
	post := &ScheduledPost{
		ID:        id,
		AccountID: accountID,
		ItemID:    itemID,
		Caption:   caption,
		ImagePath: imagePath,
		Status:    PostStatus(statusStr),
	}
	if scheduled, err := parseTimeString(scheduledRaw); err == nil {
		post.ScheduledFor = scheduled
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		post.CreatedAt = created
	}
	return post, nil
}
