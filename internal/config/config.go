// Package config loads service configuration from a YAML file and the
// environment. Environment variables take precedence over the file, and
// built-in defaults cover anything left unset, so a bare binary runs
// with no configuration at all.
//
// Environment variables use the SHEETVAULT prefix with section and field
// joined by underscores, for example SHEETVAULT_WATCH_DIR or
// SHEETVAULT_CRYPTO_PASSPHRASE.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the root configuration for the sheetvault service.
type Config struct {
	Watch      WatchConfig      `yaml:"watch" envconfig:"WATCH"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Crypto     CryptoConfig     `yaml:"crypto" envconfig:"CRYPTO"`
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// WatchConfig controls the directory poller that feeds the pipeline.
type WatchConfig struct {
	Dir          string        `yaml:"dir" envconfig:"DIR"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL" validate:"omitempty,gt=0"`
}

// PathsConfig holds the output directories for each pipeline stage.
type PathsConfig struct {
	ValidatedDir string `yaml:"validated_dir" envconfig:"VALIDATED_DIR"`
	CleanedDir   string `yaml:"cleaned_dir" envconfig:"CLEANED_DIR"`
	EncryptedDir string `yaml:"encrypted_dir" envconfig:"ENCRYPTED_DIR"`
}

// ValidationConfig controls the structural checks on incoming files.
type ValidationConfig struct {
	// MissingThreshold is the per-column missing-value fraction above
	// which a file is rejected. A column fails only when its fraction
	// strictly exceeds the threshold.
	MissingThreshold float64 `yaml:"missing_threshold" envconfig:"MISSING_THRESHOLD" validate:"gte=0,lte=1"`
}

// CryptoConfig controls the Paillier key pair used by the encrypt stage.
type CryptoConfig struct {
	// KeyFile is the path of the sealed key store. Empty means an
	// ephemeral key pair is generated at startup and never persisted.
	KeyFile    string `yaml:"key_file" envconfig:"KEY_FILE"`
	Passphrase string `yaml:"passphrase" envconfig:"PASSPHRASE" validate:"required_with=KeyFile"`
	KeyBits    int    `yaml:"key_bits" envconfig:"KEY_BITS" validate:"omitempty,gte=64"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"omitempty,min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig throttles the HTTP API.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"omitempty,gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"omitempty,gt=0"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"omitempty,oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig selects the trace and metric exporters.
type TelemetryConfig struct {
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"omitempty,oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"omitempty,oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// yaml.v2 has no native time.Duration support, so the duration-bearing
// sections decode through shadow structs and time.ParseDuration. The
// environment path does not need this; envconfig parses durations
// itself.

func (w *WatchConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Dir          string `yaml:"dir"`
		PollInterval string `yaml:"poll_interval"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	w.Dir = raw.Dir
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval: %w", err)
		}
		w.PollInterval = d
	}
	return nil
}

func (s *ServerConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Port            int             `yaml:"port"`
		ReadTimeout     string          `yaml:"read_timeout"`
		WriteTimeout    string          `yaml:"write_timeout"`
		IdleTimeout     string          `yaml:"idle_timeout"`
		ShutdownTimeout string          `yaml:"shutdown_timeout"`
		RateLimit       RateLimitConfig `yaml:"rate_limit"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	s.Port = raw.Port
	s.RateLimit = raw.RateLimit

	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &s.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &s.WriteTimeout},
		{"idle_timeout", raw.IdleTimeout, &s.IdleTimeout},
		{"shutdown_timeout", raw.ShutdownTimeout, &s.ShutdownTimeout},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// Load builds the configuration: YAML file (when present), then
// environment overrides, then defaults for anything still unset.
// An empty path means "config.yaml" next to the working directory;
// a missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Run on env and defaults alone.
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := envconfig.Process("SHEETVAULT", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults fills every field that neither the file nor the
// environment set.
func (c *Config) applyDefaults() {
	if c.Watch.Dir == "" {
		c.Watch.Dir = filepath.Join("data", "incoming")
	}
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = 10 * time.Second
	}

	if c.Paths.ValidatedDir == "" {
		c.Paths.ValidatedDir = filepath.Join("data", "validated")
	}
	if c.Paths.CleanedDir == "" {
		c.Paths.CleanedDir = filepath.Join("data", "cleaned")
	}
	if c.Paths.EncryptedDir == "" {
		c.Paths.EncryptedDir = filepath.Join("data", "encrypted")
	}

	if c.Validation.MissingThreshold == 0 {
		c.Validation.MissingThreshold = 0.7
	}

	if c.Crypto.KeyBits == 0 {
		c.Crypto.KeyBits = 2048
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.RateLimit.RPS == 0 {
		c.Server.RateLimit.RPS = 100
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 50
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "console"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join("logs", "sheetvault.log")
	}

	if c.Telemetry.TraceExporter == "" {
		c.Telemetry.TraceExporter = "none"
	}
	if c.Telemetry.MetricExporter == "" {
		c.Telemetry.MetricExporter = "prometheus"
	}
	if c.Telemetry.SampleRatio == 0 {
		c.Telemetry.SampleRatio = 1.0
	}
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// EnsureDirectories creates the watch and stage output directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Watch.Dir,
		c.Paths.ValidatedDir,
		c.Paths.CleanedDir,
		c.Paths.EncryptedDir,
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
