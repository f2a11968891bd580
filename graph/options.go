package graph

import (
	"os"
	"strconv"
	"time"
)

// Config holds the loop's tunables. Defaults come from environment
// variables read once at construction; Option values override them. Nothing
// else in the package reads the environment.
type Config struct {
	MaxTicks         int
	GraphLoadRetries int
	Home             string
	LockStaleMs      int
}

// Option configures a Config.
type Option func(*Config) error

// NewConfig builds a Config from the environment, then applies opts.
func NewConfig(opts ...Option) (Config, error) {
	cfg := Config{
		MaxTicks:         envInt("AGX_V2_MAX_TICKS", 200),
		GraphLoadRetries: envInt("AGX_V2_GRAPH_LOAD_RETRIES", 3),
		Home:             envString("AGX_HOME", defaultHome()),
		LockStaleMs:      envInt("AGX_LOCK_STALE_MS", 300000),
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// WithMaxTicks overrides the tick cap.
func WithMaxTicks(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return &EngineError{Code: "v2-required", Message: "maxTicks must be positive"}
		}
		c.MaxTicks = n
		return nil
	}
}

// WithGraphLoadRetries overrides the cloud GET retry budget.
func WithGraphLoadRetries(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return &EngineError{Code: "v2-required", Message: "graphLoadRetries must be positive"}
		}
		c.GraphLoadRetries = n
		return nil
	}
}

// WithHome overrides the local storage root.
func WithHome(dir string) Option {
	return func(c *Config) error {
		c.Home = dir
		return nil
	}
}

// WithLockStale overrides the stale-lock threshold.
func WithLockStale(d time.Duration) Option {
	return func(c *Config) error {
		c.LockStaleMs = int(d.Milliseconds())
		return nil
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agx"
	}
	return home + "/.agx"
}
