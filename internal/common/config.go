package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Tasks       TasksConfig     `toml:"tasks"`
	Polling     PollingConfig   `toml:"polling"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
	// PublicBaseURL is the externally reachable base URL used when building
	// webhook callback URLs handed to third-party services.
	PublicBaseURL string `toml:"public_base_url"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path          string `toml:"path"`            // Database file path
	CacheSizeMB   int    `toml:"cache_size_mb"`   // Page cache size
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // Lock wait timeout
	WALMode       bool   `toml:"wal_mode"`        // Enable WAL journal mode
}

// BadgerConfig represents BadgerDB-specific configuration (poll schedule state)
type BadgerConfig struct {
	Path string `toml:"path"` // Database directory path
}

// TasksConfig contains external AI service endpoints and webhook settings
type TasksConfig struct {
	TranscriptionURL string   `toml:"transcription_url"` // Transcription job submission endpoint
	DiarizationURL   string   `toml:"diarization_url"`   // Diarization job submission endpoint
	ProcessingURL    string   `toml:"processing_url"`    // Agenda/summary/highlight job submission endpoint
	RequestTimeout   Duration `toml:"request_timeout"`   // Outbound dispatch timeout
	WebhookSecret    string   `toml:"webhook_secret"`    // Optional shared secret required on inbound callbacks
	CronSecret       string   `toml:"cron_secret"`       // Bearer secret for /cron/* trigger endpoints
	DispatchRate     Duration `toml:"dispatch_rate"`     // Minimum time between outbound dispatch calls
}

// PollingConfig tunes the decision-registry polling scheduler
type PollingConfig struct {
	RegistryURL   string   `toml:"registry_url"`   // Decision registry search endpoint
	MinInterval   Duration `toml:"min_interval"`   // Backoff floor (interval after a hit)
	MaxInterval   Duration `toml:"max_interval"`   // Backoff ceiling
	Multiplier    float64  `toml:"multiplier"`     // Backoff growth factor per miss
	RecencyWindow Duration `toml:"recency_window"` // Only meetings newer than this are polled
	RateLimit     Duration `toml:"rate_limit"`     // Minimum time between registry lookups
	LookupTimeout Duration `toml:"lookup_timeout"` // Per-meeting registry request timeout
}

// SchedulerConfig controls the optional in-process cron trigger.
// The polling run is primarily driven by the external /cron/poll-decisions
// trigger; enabling this runs the same job on an internal schedule.
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron expression
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in agora.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:          8090,
			Host:          "localhost",
			PublicBaseURL: "http://localhost:8090",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/agora.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
			Badger: BadgerConfig{
				Path: "./data/pollstate",
			},
		},
		Tasks: TasksConfig{
			RequestTimeout: Duration(30 * time.Second),
			DispatchRate:   Duration(time.Second),
		},
		Polling: PollingConfig{
			MinInterval:   Duration(6 * time.Hour),
			MaxInterval:   Duration(14 * 24 * time.Hour),
			Multiplier:    2.0,
			RecencyWindow: Duration(90 * 24 * time.Hour),
			RateLimit:     Duration(time.Second),
			LookupTimeout: Duration(20 * time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 0 */6 * * *", // Every 6 hours
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones. Environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AGORA_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("AGORA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("AGORA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if base := os.Getenv("AGORA_PUBLIC_BASE_URL"); base != "" {
		config.Server.PublicBaseURL = base
	}

	if path := os.Getenv("AGORA_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}
	if path := os.Getenv("AGORA_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if url := os.Getenv("AGORA_TRANSCRIPTION_URL"); url != "" {
		config.Tasks.TranscriptionURL = url
	}
	if url := os.Getenv("AGORA_DIARIZATION_URL"); url != "" {
		config.Tasks.DiarizationURL = url
	}
	if url := os.Getenv("AGORA_PROCESSING_URL"); url != "" {
		config.Tasks.ProcessingURL = url
	}
	if secret := os.Getenv("AGORA_WEBHOOK_SECRET"); secret != "" {
		config.Tasks.WebhookSecret = secret
	}
	if secret := os.Getenv("AGORA_CRON_SECRET"); secret != "" {
		config.Tasks.CronSecret = secret
	}

	if url := os.Getenv("AGORA_REGISTRY_URL"); url != "" {
		config.Polling.RegistryURL = url
	}

	if level := os.Getenv("AGORA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// TaskEndpoint returns the configured submission endpoint for a task type
// group. Transcription and diarization run on dedicated services; the
// remaining pipeline stages share the processing service.
func (c *Config) TaskEndpoint(group string) string {
	switch group {
	case "transcription":
		return c.Tasks.TranscriptionURL
	case "diarization":
		return c.Tasks.DiarizationURL
	default:
		return c.Tasks.ProcessingURL
	}
}

// Validate checks that required settings are present
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.PublicBaseURL == "" {
		return fmt.Errorf("server.public_base_url is required for webhook callbacks")
	}
	if c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required")
	}
	if c.Polling.MinInterval <= 0 || c.Polling.MaxInterval < c.Polling.MinInterval {
		return fmt.Errorf("invalid polling intervals: min=%s max=%s", c.Polling.MinInterval, c.Polling.MaxInterval)
	}
	if c.Polling.Multiplier <= 1.0 {
		return fmt.Errorf("polling.multiplier must be greater than 1.0")
	}
	return nil
}
