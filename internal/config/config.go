// Package config loads livehook settings from defaults, an optional YAML file
// and LIVEHOOK_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. LIVEHOOK_SERVER_PORT.
const EnvPrefix = "LIVEHOOK"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Geo       GeoConfig       `mapstructure:"geo"`
	Hub       HubConfig       `mapstructure:"hub"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Retention RetentionConfig `mapstructure:"retention"`
	API       APIConfig       `mapstructure:"api"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	// PublicURL is the base replays are sent to; empty means this server's
	// own listen address.
	PublicURL string `mapstructure:"public_url"`
}

type DatabaseConfig struct {
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type GeoConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	CacheBackend      string        `mapstructure:"cache_backend"` // "memory" | "redis" | "none"
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	Redis             RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type HubConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	QueueSize         int           `mapstructure:"queue_size"`
}

type CaptureConfig struct {
	// MaxDelay caps artificial response latency; zero leaves it unbounded.
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

type RetentionConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type APIConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.trusted_proxies", []string{"0.0.0.0/0", "::/0"})
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.public_url", "")

	v.SetDefault("database.path", "livehook.db")
	v.SetDefault("database.max_open_conns", 8)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("geo.enabled", true)
	v.SetDefault("geo.base_url", "http://ip-api.com")
	v.SetDefault("geo.timeout", 3*time.Second)
	v.SetDefault("geo.requests_per_minute", 45)
	v.SetDefault("geo.cache_backend", "memory")
	v.SetDefault("geo.cache_ttl", 6*time.Hour)
	v.SetDefault("geo.redis.addr", "localhost:6379")
	v.SetDefault("geo.redis.password", "")
	v.SetDefault("geo.redis.db", 0)

	v.SetDefault("hub.heartbeat_interval", 15*time.Second)
	v.SetDefault("hub.queue_size", 64)

	v.SetDefault("capture.max_delay", time.Duration(0))

	v.SetDefault("retention.max_age", time.Duration(0))
	v.SetDefault("retention.cleanup_interval", time.Hour)

	v.SetDefault("api.default_limit", 10)
	v.SetDefault("api.max_limit", 100)
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ReplayURL is the base URL replayed requests are sent to. It never depends
// on the Host of an incoming request.
func (c *Config) ReplayURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	host := c.Server.Host
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ConfigError{Field: "server.port", Message: "must be between 1 and 65535"})
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, &ConfigError{Field: "server.max_body_bytes", Message: "must be positive"})
	}
	if c.Database.Path == "" {
		errs = append(errs, &ConfigError{Field: "database.path", Message: "must not be empty"})
	}
	switch strings.ToLower(c.Geo.CacheBackend) {
	case "memory", "redis", "none":
	default:
		errs = append(errs, &ConfigError{Field: "geo.cache_backend", Message: "must be memory, redis or none"})
	}
	if c.Geo.Enabled && c.Geo.Timeout <= 0 {
		errs = append(errs, &ConfigError{Field: "geo.timeout", Message: "must be positive"})
	}
	if c.Hub.HeartbeatInterval <= 0 {
		errs = append(errs, &ConfigError{Field: "hub.heartbeat_interval", Message: "must be positive"})
	}
	if c.Hub.QueueSize < 1 {
		errs = append(errs, &ConfigError{Field: "hub.queue_size", Message: "must be at least 1"})
	}
	if c.Retention.MaxAge > 0 && c.Retention.CleanupInterval <= 0 {
		errs = append(errs, &ConfigError{Field: "retention.cleanup_interval", Message: "must be positive when retention is enabled"})
	}
	if c.API.DefaultLimit < 1 || c.API.MaxLimit < c.API.DefaultLimit {
		errs = append(errs, &ConfigError{Field: "api", Message: "need 1 <= default_limit <= max_limit"})
	}
	return errors.Join(errs...)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
