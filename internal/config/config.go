package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

const envPrefix = "PINGTOWER"

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Probe         ProbeConfig         `mapstructure:"probe"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Batcher       BatcherConfig       `mapstructure:"batcher"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Events        EventsConfig        `mapstructure:"events"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	// Driver selects the result sink: "postgres" or "sqlite".
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	MaxConns   int32  `mapstructure:"max_conns"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SchedulerConfig struct {
	// Store selects the queue/guard/cache backend: "redis" or "memory".
	Store                string        `mapstructure:"store"`
	TickInterval         time.Duration `mapstructure:"tick_interval"`
	BatchSize            int           `mapstructure:"batch_size"`
	CycleTimeout         time.Duration `mapstructure:"cycle_timeout"`
	Workers              int           `mapstructure:"workers"`
	QueueCapacity        int           `mapstructure:"queue_capacity"`
	ShutdownGrace        time.Duration `mapstructure:"shutdown_grace"`
	ProcessingTTL        time.Duration `mapstructure:"processing_ttl"`
	ConfigMissingBackoff time.Duration `mapstructure:"config_missing_backoff"`
	ErrorBackoff         time.Duration `mapstructure:"error_backoff"`
	FirstProbeDelay      time.Duration `mapstructure:"first_probe_delay"`
	StatsInterval        time.Duration `mapstructure:"stats_interval"`
}

type ProbeConfig struct {
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

type CacheConfig struct {
	Window time.Duration `mapstructure:"window"`
}

type BatcherConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

type NotificationsConfig struct {
	Channel        string        `mapstructure:"channel"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

// Load reads configs/config.yaml (or ./config.yaml) and PINGTOWER_* environment
// overrides. A missing file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"configs", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Warn("config file not found, using defaults and environment")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pingtower-scheduler")
	v.SetDefault("app.version", "1.0.0")

	// server
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.mode", "release")

	// database
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pingtower")
	v.SetDefault("database.password", "pingtower")
	v.SetDefault("database.dbname", "pingtower")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.sqlite_path", "data/pings.db")

	// redis
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// scheduler
	v.SetDefault("scheduler.store", "redis")
	v.SetDefault("scheduler.tick_interval", "5s")
	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("scheduler.cycle_timeout", "30s")
	v.SetDefault("scheduler.workers", 20)
	v.SetDefault("scheduler.queue_capacity", 100)
	v.SetDefault("scheduler.shutdown_grace", "30s")
	v.SetDefault("scheduler.processing_ttl", "5m")
	v.SetDefault("scheduler.config_missing_backoff", "300s")
	v.SetDefault("scheduler.error_backoff", "60s")
	v.SetDefault("scheduler.first_probe_delay", "30s")
	v.SetDefault("scheduler.stats_interval", "30s")

	// probe
	v.SetDefault("probe.retry_attempts", 2)
	v.SetDefault("probe.retry_base_delay", "500ms")
	v.SetDefault("probe.retry_max_delay", "5s")
	v.SetDefault("probe.default_timeout", "10s")
	v.SetDefault("probe.user_agent", "PingTower-Scheduler/1.0")

	v.SetDefault("cache.window", "30s")

	// batcher
	v.SetDefault("batcher.batch_size", 50)
	v.SetDefault("batcher.flush_interval", "10s")
	v.SetDefault("batcher.write_timeout", "30s")

	v.SetDefault("notifications.channel", "notifications")
	v.SetDefault("notifications.publish_timeout", "5s")

	v.SetDefault("events.enabled", true)
	v.SetDefault("events.channel", "monitor:events")
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	if cfg.Server.Mode != "debug" && cfg.Server.Mode != "release" {
		return fmt.Errorf("invalid server mode %s", cfg.Server.Mode)
	}

	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.Host == "" {
			return errors.New("database host is required")
		}
		if cfg.Database.DBName == "" {
			return errors.New("database name is required")
		}
	case "sqlite":
		if cfg.Database.SQLitePath == "" {
			return errors.New("database sqlite_path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	switch cfg.Scheduler.Store {
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("redis address is required")
		}
	case "memory":
		if cfg.Events.Enabled {
			slog.Warn("lifecycle events need redis, ignoring events.enabled with memory store")
			cfg.Events.Enabled = false
		}
	default:
		return fmt.Errorf("unsupported scheduler store %q", cfg.Scheduler.Store)
	}

	if cfg.Scheduler.TickInterval <= 0 {
		return errors.New("scheduler tick_interval must be positive")
	}
	if cfg.Scheduler.BatchSize <= 0 {
		return errors.New("scheduler batch_size must be positive")
	}
	if cfg.Scheduler.Workers <= 0 {
		return errors.New("scheduler workers must be positive")
	}
	if cfg.Scheduler.QueueCapacity < 0 {
		return errors.New("scheduler queue_capacity must not be negative")
	}
	if cfg.Scheduler.ProcessingTTL <= cfg.Scheduler.CycleTimeout {
		slog.Warn("processing ttl is not longer than the cycle timeout",
			"processing_ttl", cfg.Scheduler.ProcessingTTL,
			"cycle_timeout", cfg.Scheduler.CycleTimeout,
		)
	}

	if cfg.Probe.RetryAttempts < 0 {
		return errors.New("probe retry_attempts must not be negative")
	}
	if cfg.Cache.Window < 0 {
		return errors.New("cache window must not be negative")
	}
	if cfg.Batcher.BatchSize <= 0 {
		return errors.New("batcher batch_size must be positive")
	}
	if cfg.Batcher.FlushInterval <= 0 {
		return errors.New("batcher flush_interval must be positive")
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

func (r *RedisConfig) GetRedisOptions() *redis.Options {
	return &redis.Options{
		Addr:            r.Addr,
		Password:        r.Password,
		DB:              r.DB,
		DisableIdentity: true,
	}
}
