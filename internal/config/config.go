package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	// Site API
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	ClientTimeout time.Duration `mapstructure:"client_timeout"`
	PageSize      int           `mapstructure:"page_size"`

	// Run
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	NotFoundPolicy string        `mapstructure:"not_found_policy"`
	Output         string        `mapstructure:"output"`

	// Logging
	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`
}

// Default holds the values used when nothing else sets a key.
var Default = Config{
	ClientTimeout:  30 * time.Second,
	PageSize:       100,
	PollInterval:   10 * time.Second,
	Timeout:        2 * time.Hour,
	NotFoundPolicy: "retain",
	Output:         "snapshot_report.csv",
	LogFile:        "/tmp/sitesnap.log",
	LogLevel:       "INFO",
}

// EnvPrefix prefixes every environment variable, e.g. SITESNAP_API_KEY.
const EnvPrefix = "SITESNAP"

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"api-key":          "api_key",
	"base-url":         "base_url",
	"poll-interval":    "poll_interval",
	"timeout":          "timeout",
	"not-found-policy": "not_found_policy",
	"output":           "output",
	"log-file":         "log_file",
	"log-level":        "log_level",
}

// Load resolves configuration from, in increasing precedence: defaults, the
// YAML config file, SITESNAP_* environment variables and changed flags.
// An empty configFile means ~/.sitesnap/config.yaml, which may be absent.
// flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("client_timeout", Default.ClientTimeout)
	v.SetDefault("page_size", Default.PageSize)
	v.SetDefault("poll_interval", Default.PollInterval)
	v.SetDefault("timeout", Default.Timeout)
	v.SetDefault("not_found_policy", Default.NotFoundPolicy)
	v.SetDefault("output", Default.Output)
	v.SetDefault("log_file", Default.LogFile)
	v.SetDefault("log_level", Default.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sitesnap"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no run could work with.
func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.ClientTimeout <= 0 {
		errs = append(errs, fmt.Errorf("client_timeout must be positive, got %s", c.ClientTimeout))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive, got %d", c.PageSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
