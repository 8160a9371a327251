// Package config loads the fleetq configuration from a YAML file with
// environment overrides for deployment-sensitive values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config is the full daemon configuration.
type Config struct {
	Pause  PauseConfig  `mapstructure:"pause"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Queue  QueueConfig  `mapstructure:"queue"`
	Worker WorkerConfig `mapstructure:"worker"`
	Health HealthConfig `mapstructure:"health"`
}

// PauseConfig controls the pause coordination subsystem.
type PauseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

// RedisConfig points at the shared Redis instance.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueueConfig names the queues this worker pulls from and the deployment's
// namespace prefix applied to runtime queue names.
type QueueConfig struct {
	Prefix string   `mapstructure:"prefix"`
	Names  []string `mapstructure:"names"`
}

// WorkerConfig tunes the job fetch loop.
type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	FetchRate    float64       `mapstructure:"fetch_rate"`
	FetchBurst   int           `mapstructure:"fetch_burst"`
}

// HealthConfig configures the admin HTTP server.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads fleetq.yaml from CONFIG_PATH (default ./fleetq.yaml). A missing
// file is not an error; defaults apply. REDIS_ADDR and REDIS_PASSWORD always
// win over the file so credentials stay out of config files.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "fleetq.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)

	v.SetDefault("pause.enabled", true)
	v.SetDefault("pause.resync_interval", "60s")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.prefix", "")
	v.SetDefault("queue.names", []string{"default"})
	v.SetDefault("worker.poll_interval", "1s")
	v.SetDefault("worker.fetch_rate", 100.0)
	v.SetDefault("worker.fetch_burst", 10)
	v.SetDefault("health.port", 8081)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Redis.DB = n
		}
	}

	if c.Pause.ResyncInterval <= 0 {
		c.Pause.ResyncInterval = 60 * time.Second
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = time.Second
	}
	return &c, nil
}
