// Package captioner implements the caption step: each generated item gets a
// caption and tag list written from its scene description in the account's
// configured style.
package captioner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"atelier/internal/logging"
	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/store"
)

// Captioner writes a caption and tag list from a scene description.
type Captioner interface {
	Caption(ctx context.Context, description, style string) (string, []string, error)
}

// Handler executes the caption step.
type Handler struct {
	store     *store.Store
	captioner Captioner
	logger    *slog.Logger
}

// New builds the caption handler.
func New(st *store.Store, captioner Captioner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{store: st, captioner: captioner, logger: logger}
}

// Step reports the pipeline step this handler is bound to.
func (h *Handler) Step() store.StepName { return store.StepCaption }

// Run captions every generated item without one. Captioning is best-effort:
// an uncaptioned item can still be scheduled later once a caption exists.
func (h *Handler) Run(ctx context.Context, rc pipeline.Context) (pipeline.Outcome, error) {
	items, err := h.store.GeneratedItemsWithoutCaption(ctx, rc.AccountID)
	if err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "caption", "list_items", "", err)
	}
	if len(items) == 0 {
		return pipeline.Skip("no items awaiting captions"), nil
	}
	if h.captioner == nil {
		return pipeline.Skip(fmt.Sprintf("vision provider not configured; %d item(s) left uncaptioned", len(items))), nil
	}

	var (
		output   pipeline.CaptionOutput
		captions = make(map[int64]pipeline.Caption)
	)

	for _, item := range items {
		text, tags, err := h.captioner.Caption(ctx, item.Description, rc.Settings.CaptionStyle)
		if err != nil {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: fmt.Sprintf("caption: %v", err),
			})
			continue
		}

		tagsJSON := ""
		if len(tags) > 0 {
			encoded, err := json.Marshal(tags)
			if err != nil {
				return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "caption", "encode_tags", "", err)
			}
			tagsJSON = string(encoded)
		}
		if err := h.store.SetItemCaption(ctx, item.ID, text, tagsJSON); err != nil {
			return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "caption", "persist_caption", "", err)
		}

		output.Captioned++
		captions[item.ID] = pipeline.Caption{Text: text, Tags: tags}
	}

	if output.Captioned == 0 && len(output.Errors) > 0 {
		return pipeline.Outcome{}, services.Wrap(services.ErrExternalService, "caption", "caption_items",
			fmt.Sprintf("all %d items failed", len(items)), nil)
	}

	return pipeline.Outcome{
		Output: output,
		Delta:  pipeline.Delta{Captions: captions},
	}, nil
}
