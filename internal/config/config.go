package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type (
	// Config holds configuration settings for the engine
	Config struct {
		// API server
		APIHost  string
		APIPort  int
		LogLevel string

		// Persistence
		Redis RedisConfig

		// Archiving of terminal execution records
		ArchiveBucketURL string
		ArchivePrefix    string

		// Step resolution & invocation
		ScriptRoot      string
		LoaderCacheSize int
		StepTimeout     time.Duration

		ShutdownTimeout time.Duration
	}

	// RedisConfig holds connection settings for the definition and
	// execution stores
	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}
)

const (
	DefaultAPIHost = "0.0.0.0"
	DefaultAPIPort = 8080
	MaxTCPPort     = 65535

	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisPrefix = "flume"
	DefaultRedisDB     = 0

	DefaultScriptRoot      = "./steps"
	DefaultLoaderCacheSize = 1024
	DefaultStepTimeout     = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultArchivePrefix   = "executions/"

	MaxLoaderCacheSize = 1_000_000
	MaxStepTimeoutMs   = 24 * 60 * 60 * 1000 // 1 day in ms
)

var (
	ErrInvalidAPIPort     = errors.New("invalid API port")
	ErrInvalidStepTimeout = errors.New("step timeout must be positive")
	ErrInvalidCacheSize   = errors.New("loader cache size must be positive")
	ErrRedisAddrEmpty     = errors.New("redis address empty")
)

// NewDefaultConfig creates a configuration with sensible defaults for all
// engine settings
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:  DefaultAPIHost,
		APIPort:  DefaultAPIPort,
		LogLevel: "info",
		Redis: RedisConfig{
			Addr:   DefaultRedisAddr,
			Prefix: DefaultRedisPrefix,
			DB:     DefaultRedisDB,
		},
		ArchivePrefix:   DefaultArchivePrefix,
		ScriptRoot:      DefaultScriptRoot,
		LoaderCacheSize: DefaultLoaderCacheSize,
		StepTimeout:     DefaultStepTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
		c.Redis.Prefix = prefix
	}
	if root := os.Getenv("SCRIPT_ROOT"); root != "" {
		c.ScriptRoot = root
	}
	if bucketURL := os.Getenv("ARCHIVE_BUCKET_URL"); bucketURL != "" {
		c.ArchiveBucketURL = bucketURL
	}
	if prefix := os.Getenv("ARCHIVE_PREFIX"); prefix != "" {
		c.ArchivePrefix = prefix
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt("REDIS_DB", &c.Redis.DB, -1, 15); err != nil {
		return err
	}
	if err := loadEnvInt(
		"LOADER_CACHE_SIZE", &c.LoaderCacheSize, 0, MaxLoaderCacheSize,
	); err != nil {
		return err
	}

	var timeoutMs int64
	err := loadEnvInt("STEP_TIMEOUT", &timeoutMs, 0, MaxStepTimeoutMs)
	if err != nil {
		return err
	}
	if timeoutMs > 0 {
		c.StepTimeout = time.Duration(timeoutMs) * time.Millisecond
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}
	if c.StepTimeout <= 0 {
		return ErrInvalidStepTimeout
	}
	if c.LoaderCacheSize <= 0 {
		return ErrInvalidCacheSize
	}
	if c.Redis.Addr == "" {
		return ErrRedisAddrEmpty
	}
	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
