package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                 int    `env:"PORT" envDefault:"8080"`
	DatabaseURL          string `env:"DATABASE_URL,required"`
	RedisURL             string `env:"REDIS_URL,required"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
	EnforceAvailability  bool   `env:"ENFORCE_AVAILABILITY" envDefault:"true"`
	RepositoryTimeoutMS  int    `env:"REPOSITORY_TIMEOUT_MS" envDefault:"3000"`
	SweepIntervalSeconds int    `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	RateLimitPerMin      int    `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) RepositoryTimeout() time.Duration {
	return time.Duration(c.RepositoryTimeoutMS) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.RepositoryTimeoutMS <= 0 {
		return fmt.Errorf("REPOSITORY_TIMEOUT_MS must be positive")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
