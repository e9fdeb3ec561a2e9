package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("data", "incoming"), cfg.Watch.Dir)
	assert.Equal(t, 10*time.Second, cfg.Watch.PollInterval)
	assert.Equal(t, filepath.Join("data", "validated"), cfg.Paths.ValidatedDir)
	assert.Equal(t, filepath.Join("data", "cleaned"), cfg.Paths.CleanedDir)
	assert.Equal(t, filepath.Join("data", "encrypted"), cfg.Paths.EncryptedDir)
	assert.Equal(t, 0.7, cfg.Validation.MissingThreshold)
	assert.Empty(t, cfg.Crypto.KeyFile)
	assert.Equal(t, 2048, cfg.Crypto.KeyBits)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, float64(100), cfg.Server.RateLimit.RPS)
	assert.Equal(t, 50, cfg.Server.RateLimit.Burst)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Output)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricExporter)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
watch:
  dir: /srv/drop
  poll_interval: 2s
validation:
  missing_threshold: 0.5
server:
  port: 9999
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/drop", cfg.Watch.Dir)
	assert.Equal(t, 2*time.Second, cfg.Watch.PollInterval)
	assert.Equal(t, 0.5, cfg.Validation.MissingThreshold)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset sections fall back to defaults.
	assert.Equal(t, filepath.Join("data", "cleaned"), cfg.Paths.CleanedDir)
	assert.Equal(t, 2048, cfg.Crypto.KeyBits)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
watch:
  dir: /srv/from-file
validation:
  missing_threshold: 0.5
`)

	t.Setenv("SHEETVAULT_WATCH_DIR", "/srv/from-env")
	t.Setenv("SHEETVAULT_VALIDATION_MISSING_THRESHOLD", "0.25")
	t.Setenv("SHEETVAULT_SERVER_PORT", "8500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/from-env", cfg.Watch.Dir)
	assert.Equal(t, 0.25, cfg.Validation.MissingThreshold)
	assert.Equal(t, 8500, cfg.Server.Port)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "watch: [not a mapping")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfigFile(t, `
watch:
  poll_interval: fast
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid poll_interval")
}

func TestLoad_ServerDurationsFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8200
  read_timeout: 5s
  shutdown_timeout: 1m
  rate_limit:
    enabled: true
    rps: 10
    burst: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8200, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Minute, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, float64(10), cfg.Server.RateLimit.RPS)
	assert.Equal(t, 5, cfg.Server.RateLimit.Burst)

	// Unset durations keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"threshold above one", "validation:\n  missing_threshold: 1.5\n"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"bad trace exporter", "telemetry:\n  trace_exporter: jaeger\n"},
		{"key bits too small", "crypto:\n  key_bits: 32\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
		})
	}
}

func TestLoad_KeyFileRequiresPassphrase(t *testing.T) {
	path := writeConfigFile(t, `
crypto:
  key_file: /var/lib/sheetvault/key.cbor
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")

	path = writeConfigFile(t, `
crypto:
  key_file: /var/lib/sheetvault/key.cbor
  passphrase: hunter2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/sheetvault/key.cbor", cfg.Crypto.KeyFile)
	assert.Equal(t, "hunter2", cfg.Crypto.Passphrase)
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := &Config{
		Watch: WatchConfig{Dir: filepath.Join(base, "incoming")},
		Paths: PathsConfig{
			ValidatedDir: filepath.Join(base, "validated"),
			CleanedDir:   filepath.Join(base, "cleaned"),
			EncryptedDir: filepath.Join(base, "encrypted"),
		},
		Logging: LoggingConfig{
			Output:   "file",
			FilePath: filepath.Join(base, "logs", "app.log"),
		},
	}

	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{
		cfg.Watch.Dir,
		cfg.Paths.ValidatedDir,
		cfg.Paths.CleanedDir,
		cfg.Paths.EncryptedDir,
		filepath.Join(base, "logs"),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
}
