// Package generator implements the generate step: each described item is
// synthesized into a new image from the account's reference image, metadata
// is stripped, and the result lands under the generated media directory.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"atelier/internal/imagemeta"
	"atelier/internal/logging"
	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/services/imagegen"
	"atelier/internal/store"
)

// Handler executes the generate step.
type Handler struct {
	store     *store.Store
	providers *imagegen.Registry
	outputDir string
	itemDelay time.Duration
	sleeper   func(time.Duration)
	logger    *slog.Logger
}

// Option customizes the generate handler.
type Option func(*Handler)

// WithItemDelay spaces out provider calls between items.
func WithItemDelay(delay time.Duration) Option {
	return func(h *Handler) {
		if delay >= 0 {
			h.itemDelay = delay
		}
	}
}

// WithSleeper overrides how delays are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(h *Handler) {
		if sleeper != nil {
			h.sleeper = sleeper
		}
	}
}

// New builds the generate handler. Images are written under outputDir. The
// provider for each run is resolved from the account's settings against the
// registry, so two accounts can synthesize with different backends.
func New(st *store.Store, providers *imagegen.Registry, outputDir string, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &Handler{
		store:     st,
		providers: providers,
		outputDir: outputDir,
		sleeper:   time.Sleep,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Step reports the pipeline step this handler is bound to.
func (h *Handler) Step() store.StepName { return store.StepGenerate }

// Run synthesizes an image for every described item. A missing reference
// image or provider is a whole-step failure since no item can proceed
// without them.
func (h *Handler) Run(ctx context.Context, rc pipeline.Context) (pipeline.Outcome, error) {
	items, err := h.store.DescribedItemsWithoutGenerated(ctx, rc.AccountID)
	if err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "generate", "list_items", "", err)
	}
	if len(items) == 0 {
		return pipeline.Skip("no items ready for generation"), nil
	}

	if h.providers == nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrConfiguration, "generate", "provider",
			"image generation provider not configured", nil)
	}
	provider, err := h.providers.Select(rc.Settings.GenerationProvider)
	if err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrConfiguration, "generate", "provider",
			"resolve synthesis provider for account", err)
	}
	refPath := strings.TrimSpace(rc.Settings.ReferenceImagePath)
	if refPath == "" {
		return pipeline.Outcome{}, services.Wrap(services.ErrConfiguration, "generate", "load_reference",
			"reference image not configured for account", nil)
	}
	reference, err := os.ReadFile(refPath)
	if err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrConfiguration, "generate", "load_reference",
			fmt.Sprintf("read reference image %s", refPath), err)
	}
	refMime := mimeFromPath(refPath)

	if err := os.MkdirAll(h.outputDir, 0o755); err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "generate", "output_dir", "", err)
	}

	output := pipeline.GenerateOutput{Provider: provider.Name()}
	var generatedIDs []int64

	for i, item := range items {
		if i > 0 && h.itemDelay > 0 {
			h.sleeper(h.itemDelay)
		}

		data, err := provider.Generate(ctx, imagegen.Request{
			ReferenceImage: reference,
			ReferenceMime:  refMime,
			Prompt:         item.Description,
			AspectRatio:    rc.Settings.AspectRatio,
			Size:           rc.Settings.ImageSize,
		})
		if err != nil {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: fmt.Sprintf("generate: %v", err),
			})
			continue
		}

		stripped, err := imagemeta.Strip(data)
		if err != nil {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: fmt.Sprintf("strip metadata: %v", err),
			})
			continue
		}

		path := filepath.Join(h.outputDir, fmt.Sprintf("run-%d-item-%d%s", rc.RunID, item.ID, extensionFor(stripped)))
		if err := os.WriteFile(path, stripped, 0o644); err != nil {
			output.Errors = append(output.Errors, pipeline.ItemError{
				ItemID:  item.ID,
				Ref:     item.PostURL,
				Message: fmt.Sprintf("write image: %v", err),
			})
			continue
		}
		if err := h.store.SetItemGenerated(ctx, item.ID, path); err != nil {
			return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "generate", "persist_path", "", err)
		}

		output.Generated++
		generatedIDs = append(generatedIDs, item.ID)
		h.logger.Debug("image generated",
			logging.Int64("item_id", item.ID),
			logging.String("path", path))
	}

	if output.Generated == 0 && len(output.Errors) > 0 {
		return pipeline.Outcome{}, services.Wrap(services.ErrExternalService, "generate", "generate_items",
			fmt.Sprintf("all %d items failed", len(items)), nil)
	}

	return pipeline.Outcome{
		Output: output,
		Delta:  pipeline.Delta{GeneratedItemIDs: generatedIDs},
	}, nil
}

func mimeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func extensionFor(data []byte) string {
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8 {
		return ".jpg"
	}
	return ".png"
}
