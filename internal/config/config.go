package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/michaelbrown/crucible/internal/sandbox"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath       string `mapstructure:"db_path"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

type SandboxConfig struct {
	// PolicyPath points at an optional YAML policy file; empty means the
	// built-in defaults.
	PolicyPath string `mapstructure:"policy_path"`
}

type WorkersConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

type RateLimitConfig struct {
	GlobalRPS     float64 `mapstructure:"global_rps"`
	PerIPRPS      float64 `mapstructure:"per_ip_rps"`
	PerIPBurst    int     `mapstructure:"per_ip_burst"`
	MaxConcurrent int     `mapstructure:"max_concurrent"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("crucible")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.crucible")

	v.SetEnvPrefix("CRUCIBLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	home := os.Getenv("HOME")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(home, ".crucible", "crucible.db"))
	v.SetDefault("storage.artifacts_dir", filepath.Join(home, ".crucible", "artifacts"))
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_size", 64)
	v.SetDefault("rate_limit.global_rps", 20)
	v.SetDefault("rate_limit.per_ip_rps", 2)
	v.SetDefault("rate_limit.per_ip_burst", 5)
	v.SetDefault("rate_limit.max_concurrent", 8)

	if err := v.ReadInConfig(); err != nil {
		// Absent config files mean defaults; anything else is a real fault.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// Policy resolves the sandbox policy: the configured file if set, defaults
// otherwise.
func (c *Config) Policy() (sandbox.Policy, error) {
	if c.Sandbox.PolicyPath == "" {
		return sandbox.DefaultPolicy(), nil
	}
	return sandbox.LoadPolicy(c.Sandbox.PolicyPath)
}
