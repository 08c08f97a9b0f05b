// Package describer implements the describe step: approved items receive a
// scene description from the vision provider. Carousel frames of the same
// post are described as a set, with later frames captured as pose deltas
// relative to the first frame.
package describer

import (
	"context"
	"fmt"
	"log/slog"

	"atelier/internal/logging"
	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/store"
)

// Describer produces scene descriptions for images.
type Describer interface {
	Describe(ctx context.Context, media []byte, mimeType string) (string, error)
	DescribeDelta(ctx context.Context, firstDescription string, media []byte, mimeType string) (string, error)
}

// MediaFetcher downloads the raw bytes behind a scraped media URL.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

// Handler executes the describe step.
type Handler struct {
	store     *store.Store
	describer Describer
	media     MediaFetcher
	logger    *slog.Logger
}

// New builds the describe handler.
func New(st *store.Store, describer Describer, media MediaFetcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{store: st, describer: describer, media: media, logger: logger}
}

// Step reports the pipeline step this handler is bound to.
func (h *Handler) Step() store.StepName { return store.StepDescribe }

// Run describes every approved item that lacks a description. Items arrive
// ordered by post and carousel position so frames of one post are adjacent.
func (h *Handler) Run(ctx context.Context, rc pipeline.Context) (pipeline.Outcome, error) {
	items, err := h.store.ApprovedItemsWithoutDescription(ctx, rc.AccountID)
	if err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "describe", "list_items", "", err)
	}
	if len(items) == 0 {
		return pipeline.Skip("no items awaiting description"), nil
	}
	if h.describer == nil || h.media == nil {
		return pipeline.Skip("vision provider not configured"), nil
	}

	var (
		output       pipeline.DescribeOutput
		describedIDs []int64
		// First-frame description per post, for carousel deltas.
		firstByPost = make(map[string]string)
	)

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

		var description string
		if first, ok := firstByPost[item.PostURL]; ok && item.CarouselPos > 0 {
			description, err = h.describer.DescribeDelta(ctx, first, media, mime)
		} else {
			description, err = h.describer.Describe(ctx, media, mime)
		}
		if err != nil {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: fmt.Sprintf("describe: %v", err),
			})
			continue
		}

		if err := h.store.SetItemDescription(ctx, item.ID, description); err != nil {
			return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "describe", "persist_description", "", err)
		}
		if _, ok := firstByPost[item.PostURL]; !ok {
			firstByPost[item.PostURL] = description
		}
		output.Described++
		describedIDs = append(describedIDs, item.ID)
	}

	if output.Described == 0 && len(output.Errors) > 0 {
		return pipeline.Outcome{}, services.Wrap(services.ErrExternalService, "describe", "describe_items",
			fmt.Sprintf("all %d items failed", len(items)), nil)
	}

	return pipeline.Outcome{
		Output: output,
		Delta:  pipeline.Delta{DescribedItemIDs: describedIDs},
	}, nil
}
