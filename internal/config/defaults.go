package config

const (
	defaultDataDir            = "~/.local/share/atelier"
	defaultLogDir             = "~/.local/share/atelier/logs"
	defaultScraperBaseURL     = "https://api.scrapecreators.com/v1"
	defaultScraperPageLimit   = 12
	defaultScraperTimeout     = 30
	defaultVisionModel        = "gemini-2.5-flash"
	defaultCaptionModel       = "gemini-2.5-flash"
	defaultGenerationProvider = "gemini"
	defaultGenerationBaseURL  = "https://api.bfl.ai/v1"
	defaultGenerationModel    = "gemini-2.5-flash-image"
	defaultAspectRatio        = "4:5"
	defaultImageSize          = "1080x1350"
	defaultRetryAttempts      = 3
	defaultRetryDelaySeconds  = 5
	defaultNotifyTimeout      = 10
	defaultPollInterval       = 5
	defaultErrorRetryInterval = 10
	defaultRunLanes           = 2
	defaultItemDelayMS        = 500
	defaultCronSpec           = "0 9 * * *"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

var defaultPostTimes = []string{"09:00", "13:00", "18:00"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Scraper: Scraper{
			BaseURL:        defaultScraperBaseURL,
			PageLimit:      defaultScraperPageLimit,
			RequestTimeout: defaultScraperTimeout,
		},
		Vision: Vision{
			Model:        defaultVisionModel,
			CaptionModel: defaultCaptionModel,
		},
		Generation: Generation{
			Provider:          defaultGenerationProvider,
			BaseURL:           defaultGenerationBaseURL,
			Model:             defaultGenerationModel,
			AspectRatio:       defaultAspectRatio,
			ImageSize:         defaultImageSize,
			RetryAttempts:     defaultRetryAttempts,
			RetryDelaySeconds: defaultRetryDelaySeconds,
		},
		Scheduling: Scheduling{
			PostTimes: append([]string(nil), defaultPostTimes...),
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Runs:           true,
			Errors:         true,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			RunLanes:           defaultRunLanes,
			ItemDelayMS:        defaultItemDelayMS,
		},
		Triggers: Triggers{
			CronSpec: defaultCronSpec,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
