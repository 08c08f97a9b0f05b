package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var generationProviders = map[string]struct{}{
	"gemini": {},
	"flux":   {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScraper(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateScheduling(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateScraper() error {
	if strings.TrimSpace(c.Scraper.BaseURL) == "" {
		return errors.New("scraper.base_url must be set")
	}
	if c.Scraper.PageLimit <= 0 {
		return errors.New("scraper.page_limit must be positive")
	}
	if c.Scraper.RequestTimeout <= 0 {
		return errors.New("scraper.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	provider := strings.ToLower(strings.TrimSpace(c.Generation.Provider))
	if _, ok := generationProviders[provider]; !ok {
		return fmt.Errorf("generation.provider must be one of gemini, flux (got %q)", c.Generation.Provider)
	}
	if c.Generation.RetryAttempts < 1 {
		return errors.New("generation.retry_attempts must be at least 1")
	}
	if c.Generation.RetryDelaySeconds < 0 {
		return errors.New("generation.retry_delay_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateScheduling() error {
	for _, slot := range c.Scheduling.PostTimes {
		if _, err := time.Parse("15:04", strings.TrimSpace(slot)); err != nil {
			return fmt.Errorf("scheduling.post_times entry %q is not HH:MM", slot)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.RunLanes <= 0 {
		return errors.New("workflow.run_lanes must be positive")
	}
	if c.Workflow.ItemDelayMS < 0 {
		return errors.New("workflow.item_delay_ms must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}
