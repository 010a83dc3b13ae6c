package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"linkcard/internal/service/preview"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         string   `yaml:"port"`
	DatabaseURL  string   `yaml:"database_url"`
	RedisURL     string   `yaml:"redis_url"`
	DiscordToken string   `yaml:"discord_token"`
	LogLevel     string   `yaml:"log_level"`
	APIKey       string   `yaml:"api_key"`
	CORSOrigins  []string `yaml:"cors_origins"`

	Engine EngineConfig `yaml:"engine"`
	Cache  CacheConfig  `yaml:"cache"`
	Worker WorkerConfig `yaml:"worker"`
}

// EngineConfig tunes outbound fetching of the preview engine
type EngineConfig struct {
	UserAgent        string   `yaml:"user_agent"`
	EmbedTimeout     Duration `yaml:"embed_timeout"`
	HeuristicTimeout Duration `yaml:"heuristic_timeout"`
	GenericTimeout   Duration `yaml:"generic_timeout"`
	PartialBytes     int      `yaml:"partial_bytes"`
	MaxBodyBytes     int64    `yaml:"max_body_bytes"`
}

// CacheConfig controls how long resolved previews are served from Redis
type CacheConfig struct {
	TTL Duration `yaml:"ttl"`
}

// WorkerConfig controls job polling, concurrency and outbound pacing
type WorkerConfig struct {
	Concurrency  int      `yaml:"concurrency"`
	PollInterval Duration `yaml:"poll_interval"`
	RatePerSec   float64  `yaml:"rate_per_sec"`
	Burst        int      `yaml:"burst"`
}

// Default returns the settings used when nothing overrides them
func Default() Config {
	opts := preview.DefaultOptions()
	return Config{
		Port:     "8080",
		LogLevel: "info",
		Engine: EngineConfig{
			UserAgent:        opts.UserAgent,
			EmbedTimeout:     DurationFrom(opts.EmbedTimeout),
			HeuristicTimeout: DurationFrom(opts.HeuristicTimeout),
			GenericTimeout:   DurationFrom(opts.GenericTimeout),
			PartialBytes:     opts.PartialBytes,
			MaxBodyBytes:     opts.MaxBodyBytes,
		},
		Cache: CacheConfig{
			TTL: DurationFrom(24 * time.Hour),
		},
		Worker: WorkerConfig{
			Concurrency:  4,
			PollInterval: DurationFrom(time.Second),
			RatePerSec:   5,
			Burst:        5,
		},
	}
}

// Load builds the configuration from, in increasing priority: defaults, the
// YAML file named by CONFIG_FILE (or -config), environment variables, flags.
func Load() (*Config, error) {
	return load(os.Getenv, flag.CommandLine, os.Args[1:])
}

func load(getenv func(string) string, fs *flag.FlagSet, args []string) (*Config, error) {
	configFile := getenv("CONFIG_FILE")
	port := ""
	logLevel := ""
	fs.StringVar(&configFile, "config", configFile, "Path to YAML config file")
	fs.StringVar(&port, "port", "", "Server port")
	fs.StringVar(&logLevel, "log-level", "", "Log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if configFile != "" {
		fh, err := os.Open(configFile)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer fh.Close()
		if err := decodeYAML(fh, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(getenv, &cfg); err != nil {
		return nil, err
	}

	// Command line flags override environment
	if port != "" {
		cfg.Port = port
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func applyEnv(getenv func(string) string, cfg *Config) error {
	setString := func(key string, dst *string) {
		if value := getenv(key); value != "" {
			*dst = value
		}
	}

	setString("PORT", &cfg.Port)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("REDIS_URL", &cfg.RedisURL)
	setString("DISCORD_TOKEN", &cfg.DiscordToken)
	setString("API_KEY", &cfg.APIKey)
	setString("PREVIEW_USER_AGENT", &cfg.Engine.UserAgent)

	if value := getenv("CORS_ORIGINS"); value != "" {
		cfg.CORSOrigins = splitList(value)
	}

	if value := getenv("CACHE_TTL"); value != "" {
		if err := cfg.Cache.TTL.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
	}

	if value := getenv("WORKER_CONCURRENCY"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("WORKER_CONCURRENCY: %w", err)
		}
		cfg.Worker.Concurrency = n
	}

	if value := getenv("WORKER_RATE"); value != "" {
		r, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("WORKER_RATE: %w", err)
		}
		cfg.Worker.RatePerSec = r
	}

	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks settings shared by every binary
func (c Config) Validate() error {
	var problems []string
	if c.Engine.EmbedTimeout.Duration < 0 || c.Engine.HeuristicTimeout.Duration < 0 || c.Engine.GenericTimeout.Duration < 0 {
		problems = append(problems, "engine timeouts must not be negative")
	}
	if c.Engine.PartialBytes < 0 {
		problems = append(problems, "engine.partial_bytes must not be negative")
	}
	if c.Cache.TTL.Duration < 0 {
		problems = append(problems, "cache.ttl must not be negative")
	}
	if c.Worker.Concurrency < 1 {
		problems = append(problems, "worker.concurrency must be at least 1")
	}
	if c.Worker.RatePerSec < 0 {
		problems = append(problems, "worker.rate_per_sec must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EngineOptions converts the engine section into preview.Options
func (c *Config) EngineOptions() preview.Options {
	return preview.Options{
		UserAgent:        c.Engine.UserAgent,
		EmbedTimeout:     c.Engine.EmbedTimeout.Duration,
		HeuristicTimeout: c.Engine.HeuristicTimeout.Duration,
		GenericTimeout:   c.Engine.GenericTimeout.Duration,
		PartialBytes:     c.Engine.PartialBytes,
		MaxBodyBytes:     c.Engine.MaxBodyBytes,
	}
}

// ValidateForBot ensures all required fields for bot service are present
func (c *Config) ValidateForBot() error {
	if c.DiscordToken == "" {
		return errors.New("environment variable DISCORD_TOKEN is required for bot service")
	}
	return nil
}

// ValidateForWorker ensures all required fields for worker service are present
func (c *Config) ValidateForWorker() error {
	return c.requireStores("worker")
}

// ValidateForAPI ensures all required fields for API service are present
func (c *Config) ValidateForAPI() error {
	return c.requireStores("API")
}

func (c *Config) requireStores(service string) error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("environment variable DATABASE_URL is required for %s service", service)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("environment variable REDIS_URL is required for %s service", service)
	}
	return nil
}
