package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SCHEDULER_DATABASE_HOST.
const EnvPrefix = "scheduler"

type Config struct {
	Server     ServerConfig     `mapstructure:"server" envconfig:"server"`
	Database   DatabaseConfig   `mapstructure:"database" envconfig:"database"`
	Store      StoreConfig      `mapstructure:"store" envconfig:"store"`
	Redis      RedisConfig      `mapstructure:"redis" envconfig:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt" envconfig:"jwt"`
	Scheduling SchedulingConfig `mapstructure:"scheduling" envconfig:"scheduling"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" envconfig:"dispatcher"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" envconfig:"rate_limit"`
	Log        LogConfig        `mapstructure:"log" envconfig:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" envconfig:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" envconfig:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" envconfig:"allowed_origins"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host" envconfig:"host"`
	Port         int    `mapstructure:"port" envconfig:"port"`
	User         string `mapstructure:"user" envconfig:"user"`
	Password     string `mapstructure:"password" envconfig:"password"`
	Name         string `mapstructure:"name" envconfig:"name"`
	SSLMode      string `mapstructure:"sslmode" envconfig:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" envconfig:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate" envconfig:"auto_migrate"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver" envconfig:"driver"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"url"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"min_idle_conns"`
	EventChannel string        `mapstructure:"event_channel" envconfig:"event_channel"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" envconfig:"secret"`
	Issuer string `mapstructure:"issuer" envconfig:"issuer"`
}

type SchedulingConfig struct {
	// ConflictScope is "owner" or "platform".
	ConflictScope  string        `mapstructure:"conflict_scope" envconfig:"conflict_scope"`
	ConflictWindow time.Duration `mapstructure:"conflict_window" envconfig:"conflict_window"`
	MaxBulkItems   int           `mapstructure:"max_bulk_items" envconfig:"max_bulk_items"`
}

type DispatcherConfig struct {
	// Embedded runs the dispatcher inside the API process.
	Embedded             bool          `mapstructure:"embedded" envconfig:"embedded"`
	Interval             time.Duration `mapstructure:"interval" envconfig:"interval"`
	BatchSize            int           `mapstructure:"batch_size" envconfig:"batch_size"`
	PublishTimeout       time.Duration `mapstructure:"publish_timeout" envconfig:"publish_timeout"`
	RetryAttempts        int           `mapstructure:"retry_attempts" envconfig:"retry_attempts"`
	RetryDelay           time.Duration `mapstructure:"retry_delay" envconfig:"retry_delay"`
	BreakerMaxFailures   int           `mapstructure:"breaker_max_failures" envconfig:"breaker_max_failures"`
	BreakerTimeout       time.Duration `mapstructure:"breaker_timeout" envconfig:"breaker_timeout"`
	AdvanceContentOnPost bool          `mapstructure:"advance_content_on_post" envconfig:"advance_content_on_post"`
	// Publisher is "broker" or "log".
	Publisher    string `mapstructure:"publisher" envconfig:"publisher"`
	StreamPrefix string `mapstructure:"stream_prefix" envconfig:"stream_prefix"`
	HealthPort   int    `mapstructure:"health_port" envconfig:"health_port"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" envconfig:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" envconfig:"requests_per_second"`
	Burst             int           `mapstructure:"burst" envconfig:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl" envconfig:"idle_ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level" envconfig:"level"`
	JSON  bool   `mapstructure:"json" envconfig:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "scheduler")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)

	v.SetDefault("store.driver", "postgres")

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.event_channel", "scheduling.events")

	v.SetDefault("scheduling.conflict_scope", "owner")
	v.SetDefault("scheduling.conflict_window", time.Minute)
	v.SetDefault("scheduling.max_bulk_items", 100)

	v.SetDefault("dispatcher.interval", time.Minute)
	v.SetDefault("dispatcher.batch_size", 100)
	v.SetDefault("dispatcher.publish_timeout", 30*time.Second)
	v.SetDefault("dispatcher.retry_attempts", 1)
	v.SetDefault("dispatcher.retry_delay", 2*time.Second)
	v.SetDefault("dispatcher.breaker_max_failures", 5)
	v.SetDefault("dispatcher.breaker_timeout", 5*time.Minute)
	v.SetDefault("dispatcher.publisher", "broker")
	v.SetDefault("dispatcher.stream_prefix", "publish:")
	v.SetDefault("dispatcher.health_port", 8081)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rate_limit.idle_ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yml (or CONFIG_FILE) over the defaults and then
// applies SCHEDULER_* environment overrides. A missing config file is not an
// error.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	switch strings.ToLower(c.Scheduling.ConflictScope) {
	case "owner", "platform":
	default:
		return fmt.Errorf("unsupported conflict scope %q", c.Scheduling.ConflictScope)
	}
	switch strings.ToLower(c.Dispatcher.Publisher) {
	case "broker", "log":
	default:
		return fmt.Errorf("unsupported publisher %q", c.Dispatcher.Publisher)
	}
	if c.Dispatcher.Interval <= 0 {
		return fmt.Errorf("dispatcher.interval must be greater than 0")
	}
	if c.Dispatcher.BatchSize <= 0 {
		return fmt.Errorf("dispatcher.batch_size must be greater than 0")
	}
	if c.Dispatcher.PublishTimeout <= 0 {
		return fmt.Errorf("dispatcher.publish_timeout must be greater than 0")
	}
	if c.Scheduling.ConflictWindow < 0 {
		return fmt.Errorf("scheduling.conflict_window must not be negative")
	}
	return nil
}
