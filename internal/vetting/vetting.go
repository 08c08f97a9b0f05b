// Package vetting implements the validate step: every pending item is scored
// by the vision provider and auto-approved or auto-rejected against the
// account's threshold.
package vetting

import (
	"context"
	"fmt"
	"log/slog"

	"atelier/internal/logging"
	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/store"
)

// Scorer rates a media item between 0 and 1.
type Scorer interface {
	Score(ctx context.Context, media []byte, mimeType string) (float64, error)
}

// MediaFetcher downloads the raw bytes behind a scraped media URL.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

// defaultBatchSize caps how many items one run sends to the vision provider.
// The rest of the backlog waits for the next run.
const defaultBatchSize = 50

// Handler executes the validate step. A nil scorer means no vision provider
// is configured; items stay pending for manual review.
type Handler struct {
	store     *store.Store
	scorer    Scorer
	media     MediaFetcher
	batchSize int
	logger    *slog.Logger
}

// Option customizes the validate handler.
type Option func(*Handler)

// WithBatchSize overrides how many pending items one run scores.
func WithBatchSize(size int) Option {
	return func(h *Handler) {
		if size > 0 {
			h.batchSize = size
		}
	}
}

// New builds the validate handler.
func New(st *store.Store, scorer Scorer, media MediaFetcher, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &Handler{
		store:     st,
		scorer:    scorer,
		media:     media,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Step reports the pipeline step this handler is bound to.
func (h *Handler) Step() store.StepName { return store.StepValidate }

// Run scores a bounded batch of the oldest pending items. Items at or above
// the account threshold are approved, the rest rejected. The step fails only
// when nothing could be scored at all.
func (h *Handler) Run(ctx context.Context, rc pipeline.Context) (pipeline.Outcome, error) {
	items, err := h.store.ItemsPendingVet(ctx, rc.AccountID, h.batchSize)
	if err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "validate", "list_pending", "", err)
	}
	if len(items) == 0 {
		return pipeline.Skip("no items pending review"), nil
	}
	if h.scorer == nil || h.media == nil {
		return pipeline.Skip(fmt.Sprintf("vision provider not configured; %d item(s) await manual review", len(items))), nil
	}

	threshold := rc.Settings.VetThreshold
	output := pipeline.ValidateOutput{Threshold: threshold}
	var approvedIDs []int64

	for _, item := range items {
		media, mime, err := h.media.FetchMedia(ctx, item.MediaURL)
		if err != nil {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: fmt.Sprintf("fetch media: %v", err),
			})
			continue
		}
		if mime == "" {
			mime = item.MimeType
		}

		score, err := h.scorer.Score(ctx, media, mime)
		if err != nil {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: fmt.Sprintf("score: %v", err),
			})
			continue
		}

		status := store.ItemRejected
		if score >= threshold {
			status = store.ItemApproved
		}
		if err := h.store.SetItemVetResult(ctx, item.ID, score, status); err != nil {
			return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "validate", "persist_result", "", err)
		}
		if status == store.ItemApproved {
			output.AutoApproved++
			approvedIDs = append(approvedIDs, item.ID)
		} else {
			output.AutoRejected++
		}
		h.logger.Debug("item vetted",
			logging.Int64("item_id", item.ID),
			logging.Float64("score", score),
			logging.String("status", string(status)))
	}

	if output.AutoApproved+output.AutoRejected == 0 && len(output.Errors) > 0 {
		return pipeline.Outcome{}, services.Wrap(services.ErrExternalService, "validate", "score_items",
			fmt.Sprintf("all %d items failed to score", len(items)), nil)
	}

	return pipeline.Outcome{
		Output: output,
		Delta:  pipeline.Delta{ApprovedItemIDs: approvedIDs},
	}, nil
}
