// Package config loads and validates staticpub configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// FileName is the project-local configuration file looked up by FindFile.
const FileName = "staticpub.yaml"

// Producer definition types understood by the composition root.
const (
	ProducerSitemap  = "sitemap"
	ProducerFeed     = "feed"
	ProducerSpider   = "spider"
	ProducerStatic   = "static"
	ProducerPostgres = "postgres"
	ProducerSQLite   = "sqlite"
)

// Storage backends.
const (
	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageGCS    = "gcs"
	StorageBolt   = "bolt"
)

// Render backends.
const (
	RenderColly    = "colly"
	RenderHeadless = "headless"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig           `mapstructure:"server"`
	Auth         AuthConfig             `mapstructure:"auth"`
	Site         SiteConfig             `mapstructure:"site"`
	Build        BuildConfig            `mapstructure:"build"`
	Producers    []string               `mapstructure:"producers"`
	ProducerDefs map[string]ProducerDef `mapstructure:"producer_defs"`
	Render       RenderConfig           `mapstructure:"render"`
	Storage      StorageConfig          `mapstructure:"storage"`
	DB           DBConfig               `mapstructure:"db"`
	PubSub       PubSubConfig           `mapstructure:"pubsub"`
	Events       EventsConfig           `mapstructure:"events"`
	Logging      LoggingConfig          `mapstructure:"logging"`

	// producersScalar is set by Load when `producers` was a single string
	// rather than a list.
	producersScalar bool
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SiteConfig describes the site being published.
type SiteConfig struct {
	AllowedHosts []string          `mapstructure:"allowed_hosts"`
	ContentTypes map[string]string `mapstructure:"content_types"`
	UserAgent    string            `mapstructure:"user_agent"`
	TemplatesDir string            `mapstructure:"templates_dir"`
}

// BuildConfig governs the builder and the server-mode worker pool.
type BuildConfig struct {
	Concurrency       int  `mapstructure:"concurrency"`
	ErrorPages        bool `mapstructure:"error_pages"`
	QueueDepth        int  `mapstructure:"queue_depth"`
	Workers           int  `mapstructure:"workers"`
	JobTimeoutSeconds int  `mapstructure:"job_timeout_seconds"`
}

// ProducerDef is a named producer definition. Which fields apply depends on
// Type.
type ProducerDef struct {
	Type     string   `mapstructure:"type"`
	Path     string   `mapstructure:"path"`
	URLs     []string `mapstructure:"urls"`
	Start    []string `mapstructure:"start"`
	MaxPages int      `mapstructure:"max_pages"`
	Table    string   `mapstructure:"table"`
	DBPath   string   `mapstructure:"db_path"`
}

// RenderConfig selects and tunes the renderer.
type RenderConfig struct {
	Backend        string         `mapstructure:"backend"`
	BaseURL        string         `mapstructure:"base_url"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	MaxRedirects   int            `mapstructure:"max_redirects"`
	RateLimitRPS   float64        `mapstructure:"rate_limit_rps"`
	RateLimitBurst int            `mapstructure:"rate_limit_burst"`
	Headless       HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig selects the content store.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	Local   LocalConfig `mapstructure:"local"`
	GCS     GCSConfig   `mapstructure:"gcs"`
	Bolt    BoltConfig  `mapstructure:"bolt"`
}

// LocalConfig configures the filesystem store.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSConfig configures the Cloud Storage store.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// BoltConfig configures the bbolt store.
type BoltConfig struct {
	Path   string `mapstructure:"path"`
	Bucket string `mapstructure:"bucket"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	EventLogTable          string `mapstructure:"eventlog_table"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// EventsConfig tunes the event hub and its sinks.
type EventsConfig struct {
	Enabled        bool        `mapstructure:"enabled"`
	LogEnabled     bool        `mapstructure:"log_enabled"`
	MetricsEnabled bool        `mapstructure:"metrics_enabled"`
	BufferSize     int         `mapstructure:"buffer_size"`
	Batch          BatchConfig `mapstructure:"batch"`
	SinkTimeoutMs  int         `mapstructure:"sink_timeout_ms"`
}

// BatchConfig bounds hub batches.
type BatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STATICPUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if _, ok := v.Get("producers").(string); ok && v.InConfig("producers") {
		cfg.producersScalar = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("site.user_agent", "staticpub")
	v.SetDefault("site.templates_dir", "templates")
	v.SetDefault("build.concurrency", 4)
	v.SetDefault("build.error_pages", true)
	v.SetDefault("build.queue_depth", 64)
	v.SetDefault("build.workers", 2)
	v.SetDefault("build.job_timeout_seconds", 0)
	v.SetDefault("render.backend", RenderColly)
	v.SetDefault("render.base_url", "http://localhost:8000")
	v.SetDefault("render.timeout_seconds", 30)
	v.SetDefault("render.max_redirects", 10)
	v.SetDefault("render.rate_limit_rps", 0)
	v.SetDefault("render.rate_limit_burst", 1)
	v.SetDefault("render.headless.max_parallel", 1)
	v.SetDefault("render.headless.nav_timeout_seconds", 25)
	v.SetDefault("storage.local.base_dir", "public")
	v.SetDefault("storage.bolt.bucket", "pages")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.eventlog_table", "staticpub_eventlog")
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.log_enabled", true)
	v.SetDefault("events.metrics_enabled", true)
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.batch.max_events", 256)
	v.SetDefault("events.batch.max_wait_ms", 250)
	v.SetDefault("events.sink_timeout_ms", 10000)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Wiring problems
// that the check command reports are left to Check.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Build.Concurrency <= 0 {
		return fmt.Errorf("build.concurrency must be > 0")
	}
	if c.Build.Workers <= 0 {
		return fmt.Errorf("build.workers must be > 0")
	}
	if c.Build.QueueDepth < 0 {
		return fmt.Errorf("build.queue_depth must be >= 0")
	}
	if c.Build.JobTimeoutSeconds < 0 {
		return fmt.Errorf("build.job_timeout_seconds must be >= 0")
	}
	if c.Render.TimeoutSeconds <= 0 {
		return fmt.Errorf("render.timeout_seconds must be > 0")
	}
	switch c.Render.Backend {
	case RenderColly:
	case RenderHeadless:
		if c.Render.Headless.MaxParallel <= 0 {
			return fmt.Errorf("render.headless.max_parallel must be > 0 when the headless backend is used")
		}
	default:
		return fmt.Errorf("render.backend %q must be %q or %q", c.Render.Backend, RenderColly, RenderHeadless)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for name, def := range c.ProducerDefs {
		if err := def.validate(); err != nil {
			return fmt.Errorf("producer_defs.%s: %w", name, err)
		}
	}
	return nil
}

func (d ProducerDef) validate() error {
	switch d.Type {
	case ProducerSitemap, ProducerFeed:
		if d.Type == ProducerFeed && d.Path == "" {
			return fmt.Errorf("path is required for feed producers")
		}
	case ProducerSpider:
		if d.MaxPages < 0 {
			return fmt.Errorf("max_pages must be >= 0")
		}
	case ProducerStatic:
		if len(d.URLs) == 0 {
			return fmt.Errorf("urls is required for static producers")
		}
	case ProducerPostgres:
		if d.Table == "" {
			return fmt.Errorf("table is required for postgres producers")
		}
	case ProducerSQLite:
		if d.Table == "" || d.DBPath == "" {
			return fmt.Errorf("table and db_path are required for sqlite producers")
		}
	default:
		return fmt.Errorf("unknown producer type %q", d.Type)
	}
	return nil
}

// JobTimeout is the per-job budget for server-mode builds; zero means none.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Build.JobTimeoutSeconds) * time.Second
}

// RenderTimeout converts render.timeout_seconds into a duration.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}

// FindFile returns the first configuration file on the search path:
// ./staticpub.yaml, then $XDG_CONFIG_HOME/staticpub/config.yaml. It returns
// "" when neither exists.
func FindFile() (string, error) {
	candidates := []string{FileName, filepath.Join(xdg.ConfigHome, "staticpub", "config.yaml")}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		case info.IsDir():
			continue
		}
		return candidate, nil
	}
	return "", nil
}
