package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Scraper contains configuration for the content acquisition provider.
type Scraper struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	PageLimit      int    `toml:"page_limit"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Vision contains configuration for the vision/description model. The vetting
// and describe steps degrade gracefully when no API key is configured.
type Vision struct {
	APIKey       string `toml:"api_key"`
	Model        string `toml:"model"`
	CaptionModel string `toml:"caption_model"`
}

// Configured reports whether a vision provider can be constructed.
func (v Vision) Configured() bool {
	return strings.TrimSpace(v.APIKey) != ""
}

// Generation contains configuration for the image synthesis providers.
type Generation struct {
	Provider          string `toml:"provider"`
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	AspectRatio       string `toml:"aspect_ratio"`
	ImageSize         string `toml:"image_size"`
	RetryAttempts     int    `toml:"retry_attempts"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
}

// Scheduling contains configuration for publish slot resolution.
type Scheduling struct {
	PostTimes []string `toml:"post_times"`
}

// Notifications contains configuration for ntfy push alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Runs           bool   `toml:"runs"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains worker loop timing and concurrency settings.
type Workflow struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	RunLanes           int `toml:"run_lanes"`
	ItemDelayMS        int `toml:"item_delay_ms"`
}

// Triggers contains configuration for scheduled run creation.
type Triggers struct {
	CronEnabled bool   `toml:"cron_enabled"`
	CronSpec    string `toml:"cron_spec"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for atelier.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Scraper: acquisition provider endpoint and credentials
//   - Vision: vetting/description/caption model settings
//   - Generation: image synthesis provider selection and parameters
//   - Scheduling: default publish slot times
//   - Notifications: ntfy alert settings
//   - Workflow: worker polling intervals and lane count
//   - Triggers: cron-based scheduled run creation
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Scraper       Scraper       `toml:"scraper"`
	Vision        Vision        `toml:"vision"`
	Generation    Generation    `toml:"generation"`
	Scheduling    Scheduling    `toml:"scheduling"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Triggers      Triggers      `toml:"triggers"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/atelier/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all defaults applied and paths expanded. When path is empty the default
// location is used; a missing file yields the defaults.
func Load(path string) (*Config, string, bool, error) {
	resolved := strings.TrimSpace(path)
	var err error
	if resolved == "" {
		resolved, err = DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
	} else {
		resolved, err = expandPath(resolved)
		if err != nil {
			return nil, "", false, err
		}
	}

	cfg := Default()
	found := false

	data, readErr := os.ReadFile(resolved)
	switch {
	case readErr == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, resolved, false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
		found = true
	case errors.Is(readErr, fs.ErrNotExist):
		// Missing file is fine; defaults apply.
	default:
		return nil, resolved, false, fmt.Errorf("read config %s: %w", resolved, readErr)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.expandPaths(); err != nil {
		return nil, resolved, found, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, resolved, found, err
	}
	return &cfg, resolved, found, nil
}

// WriteSample writes the embedded sample configuration to the given path,
// refusing to overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists: %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the data and log directories when absent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.MediaDir(), c.GeneratedDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// MediaDir returns the directory holding cached source media.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Paths.DataDir, "media")
}

// GeneratedDir returns the directory holding synthesized images.
func (c *Config) GeneratedDir() string {
	return filepath.Join(c.Paths.DataDir, "generated")
}

func (c *Config) expandPaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ATELIER_SCRAPER_API_KEY")); v != "" {
		cfg.Scraper.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ATELIER_VISION_API_KEY")); v != "" {
		cfg.Vision.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ATELIER_GENERATION_API_KEY")); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ATELIER_NTFY_TOPIC")); v != "" {
		cfg.Notifications.NtfyTopic = v
	}
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", trimmed, err)
	}
	return abs, nil
}
