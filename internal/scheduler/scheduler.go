// Package scheduler implements the schedule step: generated items with
// captions are placed onto the account's posting times, continuing after the
// last slot already queued.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"atelier/internal/logging"
	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/slots"
	"atelier/internal/store"
)

// Handler executes the schedule step.
type Handler struct {
	store            *store.Store
	defaultPostTimes []string
	now              func() time.Time
	logger           *slog.Logger
}

// Option customizes the schedule handler.
type Option func(*Handler)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// New builds the schedule handler. defaultPostTimes applies when the account
// has no posting times of its own.
func New(st *store.Store, defaultPostTimes []string, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &Handler{
		store:            st,
		defaultPostTimes: defaultPostTimes,
		now:              time.Now,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Step reports the pipeline step this handler is bound to.
func (h *Handler) Step() store.StepName { return store.StepSchedule }

// Run queues a post for every schedulable item. The caption comes from this
// run's caption step when available, otherwise from the item record. Items
// without a caption stay unscheduled and are picked up by a later run.
func (h *Handler) Run(ctx context.Context, rc pipeline.Context) (pipeline.Outcome, error) {
	items, err := h.store.SchedulableItems(ctx, rc.AccountID)
	if err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "schedule", "list_items", "", err)
	}
	if len(items) == 0 {
		return pipeline.Skip("nothing to schedule"), nil
	}

	postTimes := rc.Settings.PostTimes
	if len(postTimes) == 0 {
		postTimes = h.defaultPostTimes
	}
	resolver, err := slots.NewResolver(postTimes, time.Local)
	if err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrConfiguration, "schedule", "post_times", "", err)
	}

	cursor := h.now()
	if last, err := h.store.LastScheduledFor(ctx, rc.AccountID); err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "schedule", "last_slot", "", err)
	} else if last.After(cursor) {
		cursor = last
	}

	var (
		output  pipeline.ScheduleOutput
		postIDs []int64
	)

	for _, item := range items {
		caption := item.Caption
		if fromRun, ok := rc.Captions[item.ID]; ok {
			caption = fromRun.Text
		}
		if caption == "" {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: "no caption available",
			})
			continue
		}
		if item.GeneratedPath == "" {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: "no generated image",
			})
			continue
		}

		cursor = resolver.NextSlot(cursor)
		post, err := h.store.CreateScheduledPost(ctx, &store.ScheduledPost{
			AccountID:    rc.AccountID,
			ItemID:       item.ID,
			Caption:      caption,
			ImagePath:    item.GeneratedPath,
			ScheduledFor: cursor,
		})
		if err != nil {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: fmt.Sprintf("queue post: %v", err),
			})
			continue
		}

		output.Scheduled++
		postIDs = append(postIDs, post.ID)
		h.logger.Debug("post scheduled",
			logging.Int64("item_id", item.ID),
			logging.String("slot", post.ScheduledFor.Format(time.RFC3339)))
	}

	if output.Scheduled == 0 && len(output.Errors) > 0 {
		return pipeline.Outcome{}, services.Wrap(services.ErrValidation, "schedule", "queue_posts",
			fmt.Sprintf("none of %d items could be scheduled", len(items)), nil)
	}

	return pipeline.Outcome{
		Output: output,
		Delta:  pipeline.Delta{ScheduledPostIDs: postIDs},
	}, nil
}
