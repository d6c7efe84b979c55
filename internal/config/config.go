// Package config loads and validates bizdir configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/bizdir-crawler/internal/crawler"
	"github.com/JakeFAU/bizdir-crawler/internal/extract"
)

// EnvPrefix prefixes every environment override, e.g. BIZDIR_STORAGE_DRIVER.
const EnvPrefix = "BIZDIR"

// DefaultUserAgent is a desktop Chrome UA; many directories block bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Fetcher modes.
const (
	ModeStatic   = "static"
	ModeHeadless = "headless"
	ModeAuto     = "auto"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Export   ExportConfig   `mapstructure:"export"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs politeness.
type CrawlerConfig struct {
	UserAgent    string  `mapstructure:"user_agent"`
	DelaySeconds float64 `mapstructure:"delay_seconds"`
	CheckRobots  bool    `mapstructure:"check_robots"`
}

// HTTPConfig configures timeouts and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
	BackoffUnitMs  int `mapstructure:"backoff_unit_ms"`
}

// FetcherConfig selects static, headless or auto fetching.
type FetcherConfig struct {
	Mode string `mapstructure:"mode"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel        int `mapstructure:"max_parallel"`
	NavTimeoutSec      int `mapstructure:"nav_timeout_seconds"`
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// ExtractConfig maps hosts to extraction strategies.
type ExtractConfig struct {
	Sources []SourceConfig `mapstructure:"sources"`
}

// SourceConfig assigns a strategy to one host. A list keeps dotted host
// names intact, which a Viper map key would split.
type SourceConfig struct {
	Host     string `mapstructure:"host"`
	Strategy string `mapstructure:"strategy"`
}

// StorageConfig selects and locates the record store.
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ExportConfig locates exported files. A bucket takes precedence over Dir.
type ExportConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for run-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the query API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig controls zap.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
}

// Load builds a Config from defaults, an optional YAML file and the
// environment. With an empty path ./config.yaml is read when present.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.delay_seconds", 1.0)
	v.SetDefault("crawler.check_robots", true)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", crawler.DefaultMaxRetries)
	v.SetDefault("http.backoff_unit_ms", 1000)
	v.SetDefault("fetcher.mode", ModeStatic)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.promotion_threshold", crawler.DefaultPromotionThreshold)
	v.SetDefault("extract.sources", []SourceConfig{})
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", "data/business_records.db")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("export.dir", "data/exports")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.gcs_prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "logs/app.log")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.BackoffUnitMs <= 0 {
		return fmt.Errorf("http.backoff_unit_ms must be > 0")
	}
	if c.Crawler.DelaySeconds < 0 {
		return fmt.Errorf("crawler.delay_seconds must be >= 0")
	}
	switch c.Fetcher.Mode {
	case ModeStatic, ModeHeadless, ModeAuto:
	default:
		return fmt.Errorf("fetcher.mode %q is not one of static, headless, auto", c.Fetcher.Mode)
	}
	if c.Fetcher.Mode != ModeStatic && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless fetching is enabled")
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not one of sqlite, postgres, memory", c.Storage.Driver)
	}
	if _, err := extract.NewRegistryFromConfig(c.Extract.SourceMap()); err != nil {
		return fmt.Errorf("extract.sources: %w", err)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// SourceMap returns extract.sources keyed by host.
func (e ExtractConfig) SourceMap() map[string]string {
	out := make(map[string]string, len(e.Sources))
	for _, s := range e.Sources {
		out[s.Host] = s.Strategy
	}
	return out
}

// Retry converts the HTTP settings into a crawler.RetryConfig.
func (c Config) Retry() crawler.RetryConfig {
	return crawler.RetryConfig{
		MaxRetries:  c.HTTP.MaxRetries,
		BackoffUnit: time.Duration(c.HTTP.BackoffUnitMs) * time.Millisecond,
		Delay:       time.Duration(c.Crawler.DelaySeconds * float64(time.Second)),
	}
}

// HTTPTimeout is the per-request timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout is the headless navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
