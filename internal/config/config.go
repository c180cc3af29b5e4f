// Package config loads the ambient, non-CLI knobs: the admin surface, the
// optional Redis event mirror, metrics, and logging. The literal CLI
// contract (-p, -d, -w, -s, ...) is parsed with the standard flag package in
// cmd/controller and cmd/worker; viper only ever supplies defaults and
// environment overrides for what that contract leaves unspecified.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Admin    AdminConfig
	Redis    RedisConfig
	Metrics  MetricsConfig
	Auth     AuthConfig
	Poll     PollConfig
	LogLevel string
}

// AdminConfig controls the admin/observability HTTP surface.
type AdminConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// RedisConfig configures the optional event mirror (§6.6). Enabled is false
// by default: the Controller runs without Redis unless asked for it.
type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

// PollConfig controls the reactor's idle poll interval, the Go-native stand-in
// for the original's epoll_wait timeout.
type PollConfig struct {
	Interval time.Duration
}

// Load reads layered configuration: built-in defaults, an optional
// config.yaml, then TASKDISPATCH_* environment variables, in that order of
// increasing precedence.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/taskdispatch")

	setDefaults()

	viper.SetEnvPrefix("TASKDISPATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("admin.addr", ":8090")
	viper.SetDefault("admin.readtimeout", 10*time.Second)
	viper.SetDefault("admin.writetimeout", 10*time.Second)
	viper.SetDefault("admin.idletimeout", 60*time.Second)
	viper.SetDefault("admin.ratelimitrps", 10)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 10)
	viper.SetDefault("redis.minidleconns", 2)
	viper.SetDefault("redis.maxretries", 3)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	viper.SetDefault("poll.interval", 1*time.Second)

	viper.SetDefault("loglevel", "info")
}
