package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alexcolls/options-ztrading/internal/fetcher"
	"github.com/alexcolls/options-ztrading/internal/polygon"
	"github.com/alexcolls/options-ztrading/internal/ratelimit"
	"github.com/alexcolls/options-ztrading/internal/store"
)

// APIKeyEnv names the required credential variable.
const APIKeyEnv = "POLYGON_API_KEY"

// DotEnvFile is read from the working directory when present.
const DotEnvFile = ".env"

// Config holds all configuration for the options fetcher.
type Config struct {
	// Upstream API
	PolygonAPIKey  string `mapstructure:"polygon_api_key"`
	PolygonBaseURL string `mapstructure:"polygon_base_url"`

	// Output
	OutputDir string `mapstructure:"output_dir"`

	// Defaults for fetch-options
	DefaultContract   string `mapstructure:"default_contract"`
	DefaultExpiration string `mapstructure:"default_expiration"`
	DefaultLimit      int    `mapstructure:"default_limit"`
	MaxWorkers        int    `mapstructure:"max_workers"`

	// Transport, durations in seconds
	APITimeout          float64 `mapstructure:"api_timeout"`
	APIRetryCount       int     `mapstructure:"api_retry_count"`
	APIRetryDelay       float64 `mapstructure:"api_retry_delay"`
	APIBackoffFactor    float64 `mapstructure:"api_backoff_factor"`
	APIMaxBackoff       float64 `mapstructure:"api_max_backoff"`
	RateLimitDelay      float64 `mapstructure:"rate_limit_delay"`
	RateLimitMaxRetries int     `mapstructure:"rate_limit_max_retries"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`

	// Observability
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`
}

var defaults = map[string]any{
	"polygon_base_url":       polygon.DefaultBaseURL,
	"output_dir":             "data",
	"default_contract":       "put",
	"default_expiration":     "2024-01-19",
	"default_limit":          250,
	"max_workers":            8,
	"api_timeout":            30,
	"api_retry_count":        3,
	"api_retry_delay":        1,
	"api_backoff_factor":     2,
	"api_max_backoff":        30,
	"rate_limit_delay":       1,
	"rate_limit_max_retries": 0,
	"requests_per_second":    0,
	"log_level":              "info",
	"log_format":             "text",
	"metrics_textfile":       "",
}

// Load reads configuration and fails if it cannot be used, in particular
// when POLYGON_API_KEY is absent.
//
// Sources, lowest precedence first: built-in defaults, config.yaml in the
// working directory or $HOME/.options-ztrading, a .env file in the working
// directory, and the process environment (e.g. POLYGON_API_KEY, OUTPUT_DIR,
// MAX_WORKERS, API_TIMEOUT, API_RETRY_COUNT, API_RETRY_DELAY).
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads configuration without validating it.
func Read() (*Config, error) {
	v := viper.New()

	// Set up environment variable support
	v.SetEnvPrefix("") // No prefix, use full names
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := v.BindEnv("polygon_api_key", APIKeyEnv); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", APIKeyEnv, err)
	}

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.options-ztrading")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := mergeDotEnv(v, DotEnvFile); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.PolygonAPIKey = strings.TrimSpace(config.PolygonAPIKey)

	return config, nil
}

// mergeDotEnv layers KEY=value pairs from path over the config file.
// The process environment still wins.
func mergeDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := v.MergeConfigMap(env.AllSettings()); err != nil {
		return fmt.Errorf("failed to merge %s: %w", path, err)
	}
	return nil
}

// Validate reports the first problem that prevents a run.
func (c *Config) Validate() error {
	if c.PolygonAPIKey == "" {
		return &fetcher.ConfigError{
			Field:   APIKeyEnv,
			Message: "not found in environment; set it in your .env file or environment variables",
		}
	}
	if _, err := fetcher.ParseContractType(c.DefaultContract); err != nil {
		return err
	}
	if err := polygon.ValidateExpiration(c.DefaultExpiration); err != nil {
		return err
	}
	if c.DefaultLimit < 1 {
		return &fetcher.ConfigError{Field: "DEFAULT_LIMIT", Message: fmt.Sprintf("must be positive, got %d", c.DefaultLimit)}
	}
	if c.MaxWorkers < 1 {
		return &fetcher.ConfigError{Field: "MAX_WORKERS", Message: fmt.Sprintf("must be at least 1, got %d", c.MaxWorkers)}
	}
	if c.APIRetryCount < 0 {
		return &fetcher.ConfigError{Field: "API_RETRY_COUNT", Message: fmt.Sprintf("must not be negative, got %d", c.APIRetryCount)}
	}
	return nil
}

// TickersPath is the default ticker list location.
func (c *Config) TickersPath() string {
	return store.TickersPath(c.OutputDir)
}

// ClientOptions builds the transport options.
func (c *Config) ClientOptions() fetcher.Options {
	return fetcher.Options{
		BaseURL:             c.PolygonBaseURL,
		APIKey:              c.PolygonAPIKey,
		Timeout:             seconds(c.APITimeout),
		RetryCount:          c.APIRetryCount,
		RetryWaitTime:       seconds(c.APIRetryDelay),
		RetryMaxWaitTime:    seconds(c.APIMaxBackoff),
		BackoffFactor:       c.APIBackoffFactor,
		RateLimitDelay:      seconds(c.RateLimitDelay),
		MaxRateLimitRetries: c.RateLimitMaxRetries,
		Limiter:             ratelimit.New(c.RequestsPerSecond, 1),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
