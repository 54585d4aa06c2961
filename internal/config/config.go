// Package config loads optimizer settings from a YAML or TOML file and the
// environment, and converts them into the explicit pipeline configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"address-route-optimizer/internal/distance"
	"address-route-optimizer/internal/httpretry"
	"address-route-optimizer/internal/pipeline"
	"address-route-optimizer/internal/routelink"
	"address-route-optimizer/internal/tsp"
)

// Duration is a time.Duration written as "1s", "500ms" in config files
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type ProvidersConfig struct {
	NominatimURL      string   `yaml:"nominatim_url" toml:"nominatim_url"`
	NominatimInterval Duration `yaml:"nominatim_interval" toml:"nominatim_interval"`
	UserAgent         string   `yaml:"user_agent" toml:"user_agent"`
	GoogleURL         string   `yaml:"google_url" toml:"google_url"`
	OSRMURL           string   `yaml:"osrm_url" toml:"osrm_url"`
}

type RetryConfig struct {
	MaxAttempts    int      `yaml:"max_attempts" toml:"max_attempts"`
	AttemptTimeout Duration `yaml:"attempt_timeout" toml:"attempt_timeout"`
	BaseBackoff    Duration `yaml:"base_backoff" toml:"base_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff" toml:"max_backoff"`
}

type SolverConfig struct {
	TimeBudget Duration `yaml:"time_budget" toml:"time_budget"`
	Seed       int64    `yaml:"seed" toml:"seed"`
	Open       bool     `yaml:"open" toml:"open"`
}

type RedisConfig struct {
	Addr     string   `yaml:"addr" toml:"addr"`
	Password string   `yaml:"password" toml:"password"`
	DB       int      `yaml:"db" toml:"db"`
	TTL      Duration `yaml:"ttl" toml:"ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Config is the on-disk and environment configuration
type Config struct {
	APIKey      string `yaml:"api_key" toml:"api_key"`
	Start       string `yaml:"start" toml:"start"`
	Mode        string `yaml:"mode" toml:"mode"`
	Backend     string `yaml:"backend" toml:"backend"`
	SizeLimit   int    `yaml:"size_limit" toml:"size_limit"`
	Concurrency int    `yaml:"concurrency" toml:"concurrency"`
	EscapeURLs  bool   `yaml:"escape_urls" toml:"escape_urls"`
	DBPath      string `yaml:"db_path" toml:"db_path"`

	Providers ProvidersConfig `yaml:"providers" toml:"providers"`
	Retry     RetryConfig     `yaml:"retry" toml:"retry"`
	Solver    SolverConfig    `yaml:"solver" toml:"solver"`
	Redis     RedisConfig     `yaml:"redis" toml:"redis"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
}

// Default returns the configuration used when no file or variable overrides it
func Default() *Config {
	return &Config{
		Mode:        string(distance.ModeDuration),
		Backend:     string(pipeline.BackendAuto),
		SizeLimit:   distance.DefaultSizeLimit,
		Concurrency: distance.DefaultConcurrency,
		Retry: RetryConfig{
			MaxAttempts:    httpretry.DefaultPolicy.MaxAttempts,
			AttemptTimeout: Duration{httpretry.DefaultPolicy.AttemptTimeout},
			BaseBackoff:    Duration{httpretry.DefaultPolicy.BaseBackoff},
			MaxBackoff:     Duration{httpretry.DefaultPolicy.MaxBackoff},
		},
		Solver: SolverConfig{TimeBudget: Duration{tsp.DefaultTimeBudget}},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables looked up with lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"GOOGLE_MAPS_API_KEY": &c.APIKey,
		"ROUTE_START":         &c.Start,
		"ROUTE_MODE":          &c.Mode,
		"ROUTE_BACKEND":       &c.Backend,
		"ROUTE_DB_PATH":       &c.DBPath,
		"REDIS_ADDR":          &c.Redis.Addr,
		"REDIS_PASSWORD":      &c.Redis.Password,
		"SERVER_ADDR":         &c.Server.Addr,
	}
	for key, field := range strs {
		if v, ok := lookup(key); ok {
			*field = v
		}
	}

	if v, ok := lookup("ROUTE_SIZE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ROUTE_SIZE_LIMIT %q: %w", v, err)
		}
		c.SizeLimit = n
	}
	if v, ok := lookup("ROUTE_TIME_BUDGET"); ok {
		if err := c.Solver.TimeBudget.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid ROUTE_TIME_BUDGET: %w", err)
		}
	}
	return nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if _, err := pipeline.ParseBackend(c.Backend); err != nil {
		return err
	}
	if c.Backend == string(pipeline.BackendMatrix) && c.APIKey == "" {
		return errors.New("backend matrix requires api_key")
	}
	if c.SizeLimit < 0 || c.Concurrency < 0 {
		return errors.New("size_limit and concurrency must not be negative")
	}
	return nil
}

// Pipeline converts the configuration into the pipeline's explicit settings
func (c *Config) Pipeline() (pipeline.Config, error) {
	if err := c.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	backend, _ := pipeline.ParseBackend(c.Backend)

	return pipeline.Config{
		APIKey:            c.APIKey,
		Start:             strings.TrimSpace(c.Start),
		Mode:              distance.ParseMode(c.Mode),
		Backend:           backend,
		SizeLimit:         c.SizeLimit,
		Concurrency:       c.Concurrency,
		NominatimURL:      c.Providers.NominatimURL,
		NominatimInterval: c.Providers.NominatimInterval.Duration,
		UserAgent:         c.Providers.UserAgent,
		GoogleURL:         c.Providers.GoogleURL,
		OSRMURL:           c.Providers.OSRMURL,
		Policy: httpretry.Policy{
			MaxAttempts:    c.Retry.MaxAttempts,
			AttemptTimeout: c.Retry.AttemptTimeout.Duration,
			BaseBackoff:    c.Retry.BaseBackoff.Duration,
			MaxBackoff:     c.Retry.MaxBackoff.Duration,
		},
		Solver: tsp.Options{
			TimeBudget: c.Solver.TimeBudget.Duration,
			Seed:       c.Solver.Seed,
			Open:       c.Solver.Open,
		},
		Link: routelink.Builder{Escape: c.EscapeURLs},
	}, nil
}
