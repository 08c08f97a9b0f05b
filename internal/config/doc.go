// Package config loads, validates, and defaults the TOML configuration for
// atelier. Configuration covers directories, the scraping/vision/generation
// provider credentials, ntfy notifications, worker timing, and logging.
//
// Secrets may be supplied via environment variables (ATELIER_SCRAPER_API_KEY,
// ATELIER_VISION_API_KEY, ATELIER_GENERATION_API_KEY) which override the file.
package config
