package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/etcbridge/etcbridge/pkg/engine"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort         = 8080
	DefaultCacheTTL         = 10 * time.Minute
	DefaultHistoryRetention = 30 * 24 * time.Hour
	DefaultSweepWorkers     = 4
	DefaultSweepMaxPoints   = 500
	DefaultSweepQueue       = 32
	DefaultStreamInterval   = 5 * time.Second
)

// EnvRefdataDir is the environment variable consulted for the reference-data
// directory when refdata.dir is not set in the config file.
const EnvRefdataDir = "ETC_REFDATA_DIR"

// Config is the top-level etcbridged configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all gateway settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, metrics and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the gateway authenticates incoming API requests.
	Auth AuthConfig `yaml:"auth"`

	// Engine locates and authenticates against the external ETC engine.
	Engine engine.Config `yaml:"engine"`

	// Refdata configures the reference calibration data directory.
	Refdata RefdataConfig `yaml:"refdata"`

	// Cache controls the in-memory result cache.
	Cache CacheConfig `yaml:"cache"`

	// History configures the persistent run-history backend.
	History HistoryConfig `yaml:"history"`

	// Limits holds parameter guard-rail rules rejecting requests before
	// they reach the engine.
	Limits LimitsConfig `yaml:"limits"`

	// Sweeps configures batch sweep job execution.
	Sweeps SweepsConfig `yaml:"sweeps"`

	// Stream controls the WebSocket job-progress broadcast.
	Stream StreamConfig `yaml:"stream"`
}

// AuthConfig controls client authentication on the gateway side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// RefdataConfig locates the reference calibration data.
type RefdataConfig struct {
	// Dir is the directory holding one YAML file per instrument.
	// Empty means: consult ETC_REFDATA_DIR, then fall back to the
	// compiled-in tables.
	Dir string `yaml:"dir"`
}

// EffectiveDir resolves the reference-data directory: explicit config wins,
// then the environment, then empty (built-in tables).
func (r RefdataConfig) EffectiveDir() string {
	if r.Dir != "" {
		return r.Dir
	}
	return os.Getenv(EnvRefdataDir)
}

// CacheConfig controls the in-memory result cache.
type CacheConfig struct {
	// TTL is how long a cached engine result stays valid.
	// Zero disables caching entirely.
	TTL time.Duration `yaml:"ttl"`
}

// HistoryConfig configures the run-history persistence backend.
type HistoryConfig struct {
	// Backend selects the storage implementation: sqlite | none.
	Backend string `yaml:"backend"`

	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`

	// Retention is how long historical runs are kept before deletion.
	Retention time.Duration `yaml:"retention"`
}

// LimitsConfig holds parameter guard-rail rules.
type LimitsConfig struct {
	Rules []Rule `yaml:"rules"`
}

// Rule defines one guard rail. A request matching the condition is rejected.
type Rule struct {
	// Name is the human-readable rule identifier.
	Name string `yaml:"name"`

	// Condition is an expression like "exposures > 10000" or
	// "mag_ab > 35". Supported fields: mag_ab, aperture_arcsec, groups,
	// exposures, target_snr.
	Condition string `yaml:"condition"`

	// Message is returned to the caller when the rule fires. Optional.
	Message string `yaml:"message"`
}

// SweepsConfig configures batch sweep jobs.
type SweepsConfig struct {
	// Workers is the number of concurrent engine calls per sweep.
	Workers int `yaml:"workers"`

	// MaxPoints caps the grid size of a single sweep.
	MaxPoints int `yaml:"max_points"`

	// Queue is the maximum number of jobs waiting to run.
	Queue int `yaml:"queue"`

	// Webhooks are notified when a sweep finishes.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// StreamConfig controls the WebSocket job-progress broadcast.
type StreamConfig struct {
	// Interval is how often connected clients receive a jobs snapshot.
	Interval time.Duration `yaml:"interval"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Cache:    CacheConfig{TTL: DefaultCacheTTL},
			History: HistoryConfig{
				Backend:   "none",
				Retention: DefaultHistoryRetention,
			},
			Sweeps: SweepsConfig{
				Workers:   DefaultSweepWorkers,
				MaxPoints: DefaultSweepMaxPoints,
				Queue:     DefaultSweepQueue,
			},
			Stream: StreamConfig{Interval: DefaultStreamInterval},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Engine.Endpoint == "" {
		return fmt.Errorf("server.engine.endpoint is required")
	}
	switch s.Engine.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("server.engine.auth.mode %q unknown", s.Engine.Auth.Mode)
	}
	if s.Cache.TTL < 0 {
		return fmt.Errorf("server.cache.ttl must not be negative")
	}
	switch s.History.Backend {
	case "sqlite":
		if s.History.Path == "" {
			return fmt.Errorf("server.history.path is required for the sqlite backend")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.history.backend %q unknown: want sqlite|none", s.History.Backend)
	}
	if s.History.Retention < 0 {
		return fmt.Errorf("server.history.retention must not be negative")
	}
	if s.Sweeps.Workers <= 0 {
		return fmt.Errorf("server.sweeps.workers must be positive")
	}
	if s.Sweeps.MaxPoints <= 0 {
		return fmt.Errorf("server.sweeps.max_points must be positive")
	}
	if s.Sweeps.Queue <= 0 {
		return fmt.Errorf("server.sweeps.queue must be positive")
	}
	for i, r := range s.Limits.Rules {
		if r.Name == "" {
			return fmt.Errorf("limits.rules[%d]: name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("limits.rules[%d] %q: condition must be \"field op value\"", i, r.Name)
		}
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	return nil
}
