// Package scraper implements the scrape step: it pulls recent posts from
// every active source and records them as pending items, deduplicating on
// post reference and carousel position.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"atelier/internal/logging"
	"atelier/internal/notifications"
	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/services/scrapeapi"
	"atelier/internal/store"
)

// Fetcher pulls recent posts for a source handle.
type Fetcher interface {
	FetchItems(ctx context.Context, sourceHandle string) ([]scrapeapi.FetchedItem, error)
}

// Handler executes the scrape step.
type Handler struct {
	store    *store.Store
	fetcher  Fetcher
	notifier notifications.Service
	logger   *slog.Logger
}

// New builds the scrape handler.
func New(st *store.Store, fetcher Fetcher, notifier notifications.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{store: st, fetcher: fetcher, notifier: notifier, logger: logger}
}

// Step reports the pipeline step this handler is bound to.
func (h *Handler) Step() store.StepName { return store.StepScrape }

// Run fetches posts from every active source. A source that fails is
// recorded and skipped; the step only fails when every source fails.
func (h *Handler) Run(ctx context.Context, rc pipeline.Context) (pipeline.Outcome, error) {
	sources, err := h.store.ActiveSources(ctx, rc.AccountID)
	if err != nil {
		return pipeline.Outcome{}, services.Wrap(services.ErrTransient, "scrape", "list_sources", "", err)
	}
	if len(sources) == 0 {
		return pipeline.Skip("no active sources configured"), nil
	}

	var (
		output        pipeline.ScrapeOutput
		scrapedIDs    []int64
		failedSources int
		lastErr       error
		alerted       bool
	)
	output.SourcesChecked = len(sources)

	for _, source := range sources {
		fetched, err := h.fetcher.FetchItems(ctx, source.Handle)
		if err != nil {
			failedSources++
			lastErr = err
			output.Errors = append(output.Errors, pipeline.ItemError{
				Ref:     source.Handle,
				Message: err.Error(),
			})
			h.logger.Warn("source fetch failed",
				logging.String("source", source.Handle),
				logging.Error(err))
			if errors.Is(err, scrapeapi.ErrForbidden) && !alerted {
				alerted = true
				h.alertCredentials(ctx, rc.AccountID)
			}
			continue
		}

		for _, entry := range fetched {
			item := &store.Item{
				AccountID:     rc.AccountID,
				SourceID:      source.ID,
				PostURL:       entry.PostRef,
				CarouselPos:   entry.CarouselPos,
				CarouselTotal: entry.CarouselTotal,
				MediaURL:      entry.MediaURL,
				MimeType:      entry.MimeType,
				PostedAt:      entry.PostedAt,
			}
			duplicate, err := h.store.InsertItem(ctx, item)
			if err != nil {
				output.Errors = append(output.Errors, pipeline.ItemError{
					Ref:     entry.PostRef,
					Message: err.Error(),
				})
				continue
			}
			if duplicate {
				output.Duplicates++
				continue
			}
			output.ItemsScraped++
			scrapedIDs = append(scrapedIDs, item.ID)
		}
	}

	if failedSources == len(sources) {
		return pipeline.Outcome{}, services.Wrap(services.ErrExternalService, "scrape", "fetch_items",
			fmt.Sprintf("all %d sources failed", len(sources)), lastErr)
	}

	return pipeline.Outcome{
		Output: output,
		Delta:  pipeline.Delta{ScrapedItemIDs: scrapedIDs},
	}, nil
}

func (h *Handler) alertCredentials(ctx context.Context, accountID int64) {
	if h.notifier == nil {
		return
	}
	handle := fmt.Sprintf("account %d", accountID)
	if account, err := h.store.GetAccount(ctx, accountID); err == nil {
		handle = account.Handle
	}
	if err := h.notifier.Publish(ctx, notifications.EventCredentialsExpiring, notifications.Payload{
		"account": handle,
	}); err != nil {
		h.logger.Warn("credentials alert failed", logging.Error(err))
	}
}
