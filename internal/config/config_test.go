package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, cfg.Crawler.UserAgent)
	assert.True(t, cfg.Crawler.CheckRobots)
	assert.Equal(t, 30, cfg.HTTP.TimeoutSeconds)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, ModeStatic, cfg.Fetcher.Mode)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "data/business_records.db", cfg.Storage.Path)
	assert.Equal(t, "data/exports", cfg.Export.Dir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "logs/app.log", cfg.Logging.File)
	assert.Empty(t, cfg.Extract.Sources)

	retry := cfg.Retry()
	assert.Equal(t, 3, retry.MaxRetries)
	assert.Equal(t, time.Second, retry.BackoffUnit)
	assert.Equal(t, time.Second, retry.Delay)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, 45*time.Second, cfg.NavTimeout())
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bizdir.yaml")
	configYAML := `
crawler:
  user_agent: test-agent
  delay_seconds: 0.5
  check_robots: false
http:
  timeout_seconds: 10
  max_retries: 0
  backoff_unit_ms: 250
fetcher:
  mode: auto
extract:
  sources:
    - host: profiles.example.co.jp
      strategy: definition_list
    - host: list.example.com
      strategy: table
storage:
  driver: postgres
  dsn: postgres://localhost/bizdir
export:
  gcs_bucket: exports
logging:
  level: debug
  file: ""
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-agent", cfg.Crawler.UserAgent)
	assert.False(t, cfg.Crawler.CheckRobots)
	assert.Equal(t, ModeAuto, cfg.Fetcher.Mode)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "exports", cfg.Export.GCSBucket)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.File)
	assert.Equal(t, map[string]string{
		"profiles.example.co.jp": "definition_list",
		"list.example.com":       "table",
	}, cfg.Extract.SourceMap())

	retry := cfg.Retry()
	assert.Equal(t, 0, retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, retry.BackoffUnit)
	assert.Equal(t, 500*time.Millisecond, retry.Delay)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BIZDIR_STORAGE_DRIVER", "memory")
	t.Setenv("BIZDIR_SERVER_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadReadsWorkingDirConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 7070\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		HTTP:    HTTPConfig{TimeoutSeconds: 10, MaxRetries: 1, BackoffUnitMs: 100},
		Fetcher: FetcherConfig{Mode: ModeStatic},
		Storage: StorageConfig{Driver: DriverSQLite, Path: "x.db"},
		Server:  ServerConfig{Port: 8080},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"zero backoff", func(c *Config) { c.HTTP.BackoffUnitMs = 0 }, "http.backoff_unit_ms"},
		{"negative delay", func(c *Config) { c.Crawler.DelaySeconds = -0.1 }, "crawler.delay_seconds"},
		{"unknown mode", func(c *Config) { c.Fetcher.Mode = "browser" }, "fetcher.mode"},
		{"headless without parallelism", func(c *Config) { c.Fetcher.Mode = ModeHeadless }, "headless.max_parallel"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = " " }, "storage.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "storage.dsn"},
		{"unknown strategy", func(c *Config) {
			c.Extract.Sources = []SourceConfig{{Host: "a.example", Strategy: "magic"}}
		}, "extract.sources"},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
