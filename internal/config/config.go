// Package config loads the daemon's configuration via viper, matching
// spec.md §6's configuration object plus the scheduler tuning knobs
// needed to drive C6. A YAML file, environment variables prefixed
// MANGAVAULT_, and defaults all compose through viper's usual
// precedence (highest first: explicit Set, flag, env, config file,
// default).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type RepositoryConfig struct {
	URL       string   `mapstructure:"url"`
	Whitelist []string `mapstructure:"whitelist"`
	Blacklist []string `mapstructure:"blacklist"`
}

type CacheConfig struct {
	NovelMinutes int `mapstructure:"novel_minutes"`
}

// Config is the full daemon configuration, spanning spec.md §6's
// recognized options and the scheduler's tuning knobs.
type Config struct {
	PluginsFolder   string             `mapstructure:"plugins_folder"`
	Repositories    []RepositoryConfig `mapstructure:"repositories"`
	FlareSolverURL  string             `mapstructure:"flaresolverr_url"`
	WebDriverURL    string             `mapstructure:"webdriver_url"`
	APIPort         int                `mapstructure:"api_port"`
	SecretJWT       string             `mapstructure:"secret_jwt"`
	JWTDurationDays int                `mapstructure:"jwt_duration_days"`
	UploadsFolder   string             `mapstructure:"uploads_folder"`
	MaxFileSize     int64              `mapstructure:"max_file_size"`
	Cache           CacheConfig        `mapstructure:"cache"`

	LogLevel string `mapstructure:"log_level"`
	LogPretty bool  `mapstructure:"log_pretty"`

	// Scheduler (C6) tuning, not part of spec.md §6's literal list but
	// needed to construct it; defaults match §4.6's examples.
	SearchInterval  time.Duration `mapstructure:"search_interval"`
	CooldownDuration time.Duration `mapstructure:"cooldown_duration"`
	MaxConcurrency  int64         `mapstructure:"max_concurrency"`
	AgingInterval   time.Duration `mapstructure:"aging_interval"`
	QueueMaxSize    int           `mapstructure:"queue_max_size"`
	QueueMaxFail    uint32        `mapstructure:"queue_max_fail"`
}

// Load reads configuration from path (if non-empty), environment
// variables, and defaults. Environment variables override values from
// the file, which override the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("plugins_folder", "./plugins")
	v.SetDefault("uploads_folder", "./uploads")
	v.SetDefault("api_port", 8080)
	v.SetDefault("jwt_duration_days", 30)
	v.SetDefault("max_file_size", 20*1024*1024)
	v.SetDefault("cache.novel_minutes", 60)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("search_interval", 30*time.Minute)
	v.SetDefault("cooldown_duration", 10*time.Second)
	v.SetDefault("max_concurrency", int64(4))
	v.SetDefault("aging_interval", 300*time.Second)
	v.SetDefault("queue_max_size", 100)
	v.SetDefault("queue_max_fail", uint32(3))

	v.SetEnvPrefix("mangavault")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
