package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"atelier/internal/captioner"
	"atelier/internal/config"
	"atelier/internal/describer"
	"atelier/internal/generator"
	"atelier/internal/notifications"
	"atelier/internal/pipeline"
	"atelier/internal/scheduler"
	"atelier/internal/scraper"
	"atelier/internal/services"
	"atelier/internal/services/imagegen"
	"atelier/internal/services/scrapeapi"
	"atelier/internal/services/vision"
	"atelier/internal/store"
	"atelier/internal/vetting"
)

// buildStepSet constructs the production step handlers from configuration.
// The vision scorer, describer, and captioner stay nil when no vision key is
// configured; those steps skip and leave items for manual review.
func buildStepSet(ctx context.Context, cfg *config.Config, st *store.Store, notifier notifications.Service, logger *slog.Logger) (pipeline.StepSet, error) {
	scrapeOpts := []scrapeapi.Option{
		scrapeapi.WithBaseURL(cfg.Scraper.BaseURL),
		scrapeapi.WithPageLimit(cfg.Scraper.PageLimit),
	}
	if cfg.Scraper.RequestTimeout > 0 {
		scrapeOpts = append(scrapeOpts, scrapeapi.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Scraper.RequestTimeout) * time.Second,
		}))
	}
	scrapeClient := scrapeapi.NewClient(cfg.Scraper.APIKey, scrapeOpts...)

	var (
		scorer     vetting.Scorer
		describing describer.Describer
		captioning captioner.Captioner
	)
	if cfg.Vision.Configured() {
		visionClient, err := vision.NewClient(ctx, cfg.Vision)
		if err != nil {
			return pipeline.StepSet{}, fmt.Errorf("build vision client: %w", err)
		}
		scorer = visionClient
		describing = visionClient
		captioning = visionClient
	}

	registry, err := buildGenerationRegistry(ctx, cfg)
	if err != nil {
		return pipeline.StepSet{}, err
	}

	itemDelay := time.Duration(cfg.Workflow.ItemDelayMS) * time.Millisecond

	return pipeline.StepSet{
		Scraper:   scraper.New(st, scrapeClient, notifier, logger),
		Validator: vetting.New(st, scorer, scrapeClient, logger),
		Describer: describer.New(st, describing, scrapeClient, logger),
		Generator: generator.New(st, registry, cfg.GeneratedDir(), logger, generator.WithItemDelay(itemDelay)),
		Captioner: captioner.New(st, captioning, logger),
		Scheduler: scheduler.New(st, cfg.Scheduling.PostTimes, logger),
	}, nil
}

// buildGenerationRegistry constructs the registry the generate step resolves
// providers from. The configured backend is registered under its name and
// doubles as the default for accounts without a generation_provider setting.
// An account naming a backend with no credentials fails that run, not the
// daemon.
func buildGenerationRegistry(ctx context.Context, cfg *config.Config) (*imagegen.Registry, error) {
	registry := imagegen.NewRegistry(cfg.Generation.Provider)

	name := strings.ToLower(strings.TrimSpace(cfg.Generation.Provider))
	if name == "" || strings.TrimSpace(cfg.Generation.APIKey) == "" {
		// An empty registry fails the generate step per run. Preflight
		// surfaces the gap at startup.
		return registry, nil
	}

	var inner imagegen.Provider
	switch name {
	case "gemini":
		p, err := imagegen.NewGemini(ctx, cfg.Generation.APIKey, cfg.Generation.Model)
		if err != nil {
			return nil, fmt.Errorf("build gemini provider: %w", err)
		}
		inner = p
	case "flux":
		p, err := imagegen.NewFlux(cfg.Generation.APIKey, cfg.Generation.BaseURL, cfg.Generation.Model)
		if err != nil {
			return nil, fmt.Errorf("build flux provider: %w", err)
		}
		inner = p
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", services.ErrConfiguration, cfg.Generation.Provider)
	}

	retryOpts := []imagegen.RetryOption{}
	if cfg.Generation.RetryAttempts > 0 {
		retryOpts = append(retryOpts, imagegen.WithAttempts(cfg.Generation.RetryAttempts))
	}
	if cfg.Generation.RetryDelaySeconds > 0 {
		retryOpts = append(retryOpts, imagegen.WithDelay(time.Duration(cfg.Generation.RetryDelaySeconds)*time.Second))
	}
	registry.Register(imagegen.NewRetrying(inner, retryOpts...))
	return registry, nil
}
