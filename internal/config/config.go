package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type SchedulerConfig struct {
	Timezone string `mapstructure:"timezone"`
	Workers  int    `mapstructure:"workers"`
	QueueLen int    `mapstructure:"queue_len"`
}

// DefaultsConfig holds system-wide pipeline tunables.
type DefaultsConfig struct {
	CacheTTLSeconds       int `mapstructure:"cache_ttl_seconds"`
	AlertDedupMinutes     int `mapstructure:"alert_dedup_minutes"`
	InvokerTimeoutSeconds int `mapstructure:"invoker_timeout_seconds"`
	MaxWidgetConcurrency  int `mapstructure:"max_widget_concurrency"`
}

// CacheTTL returns the default maximum age accepted on cache reads.
func (d DefaultsConfig) CacheTTL() time.Duration {
	return time.Duration(d.CacheTTLSeconds) * time.Second
}

// AlertDedupWindow returns the minimum time between repeated firings of
// the same alert condition.
func (d DefaultsConfig) AlertDedupWindow() time.Duration {
	return time.Duration(d.AlertDedupMinutes) * time.Minute
}

// InvokerTimeout returns the default deadline for data source calls.
func (d DefaultsConfig) InvokerTimeout() time.Duration {
	return time.Duration(d.InvokerTimeoutSeconds) * time.Second
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env cover it
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3275)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "development")

	viper.SetDefault("database.path", "./data/pulseboard.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 20)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("websocket.ping_interval", 54)
	viper.SetDefault("websocket.pong_timeout", 60)
	viper.SetDefault("websocket.write_timeout", 10)

	viper.SetDefault("scheduler.timezone", "UTC")
	viper.SetDefault("scheduler.workers", 4)
	viper.SetDefault("scheduler.queue_len", 256)

	viper.SetDefault("defaults.cache_ttl_seconds", 60)
	viper.SetDefault("defaults.alert_dedup_minutes", 60)
	viper.SetDefault("defaults.invoker_timeout_seconds", 30)
	viper.SetDefault("defaults.max_widget_concurrency", 8)
}
