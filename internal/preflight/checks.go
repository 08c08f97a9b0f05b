package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"atelier/internal/config"
)

// MinFreeBytes is the smallest amount of free space the data disk may have
// before preflight flags it. Generated media accumulates quickly.
const MinFreeBytes = 512 << 20

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies that the filesystem holding path has at least
// minBytes of free space available to the daemon.
func CheckDiskSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s free, need at least %s", formatBytes(free), formatBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free", formatBytes(free))}
}

// CheckScraperCredentials verifies that acquisition credentials are present.
// Reachability is not verified here; the scrape step reports credential failures
// with a notification when they occur.
func CheckScraperCredentials(cfg config.Scraper) Result {
	const name = "Scraper credentials"
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("invalid base url: %v", err)}
		}
	}
	return Result{Name: name, Passed: true, Detail: "API key configured"}
}

// CheckVisionFromConfig reports vision provider readiness. An unconfigured
// provider passes because vetting and describing degrade to manual review.
func CheckVisionFromConfig(cfg *config.Config) Result {
	const name = "Vision provider"
	if cfg == nil || !cfg.Vision.Configured() {
		return Result{Name: name, Passed: true, Detail: "Disabled (items await manual review)"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Configured (%s)", orDefault(cfg.Vision.Model, "default model"))}
}

// CheckGenerationFromConfig reports image synthesis readiness.
func CheckGenerationFromConfig(cfg *config.Config) Result {
	const name = "Generation provider"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	provider := strings.TrimSpace(cfg.Generation.Provider)
	if provider == "" {
		return Result{Name: name, Detail: "no provider selected"}
	}
	if strings.TrimSpace(cfg.Generation.APIKey) == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s selected but API key missing", provider)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Configured (%s)", provider)}
}

// CheckNtfy verifies that the configured ntfy endpoint is reachable.
func CheckNtfy(ctx context.Context, endpoint string) Result {
	const name = "Notifications"

	trimmed := strings.TrimSpace(endpoint)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid ntfy endpoint %q", trimmed)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, trimmed, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("reachability check failed (%v)", err)}
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("reachability check failed (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{Name: name, Detail: fmt.Sprintf("ntfy returned %d", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
