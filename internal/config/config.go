package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hunabku/shorturl/internal/logger"
)

// Supported store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Allocator AllocatorConfig `yaml:"allocator"`
	Auth      AuthConfig      `yaml:"auth"`
	Validator ValidatorConfig `yaml:"validator"`
	App       AppConfig       `yaml:"app"`
	Log       logger.Config   `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the persistent store
type StoreConfig struct {
	Driver  string        `yaml:"driver"`  // sqlite, postgres, redis, memory
	Path    string        `yaml:"path"`    // sqlite database file
	DSN     string        `yaml:"dsn"`     // postgres connection string
	Timeout time.Duration `yaml:"timeout"` // bound on every store call
}

// RedisConfig holds Redis connection settings, shared by the redis store
// driver and the resolution cache
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CacheConfig controls the read-through resolution cache
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	TTL         time.Duration `yaml:"ttl"`
	NegativeTTL time.Duration `yaml:"negative_ttl"`
}

// AllocatorConfig holds short code allocation settings
type AllocatorConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// AuthConfig holds the shared secret required to create short links
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// ValidatorConfig controls which target URLs are accepted
type ValidatorConfig struct {
	MaxURLLength    int      `yaml:"max_url_length"`
	AllowPrivateIPs bool     `yaml:"allow_private_ips"`
	BlockedDomains  []string `yaml:"blocked_domains"`
}

// AppConfig holds application-specific settings
type AppConfig struct {
	BaseURL     string `yaml:"base_url"`
	Environment string `yaml:"environment"` // "development", "production", "testing"
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:  DriverSQLite,
			Path:    "./data/shorturl.db",
			Timeout: 2 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "shorturl:",
		},
		Cache: CacheConfig{
			TTL:         time.Hour,
			NegativeTTL: time.Minute,
		},
		Allocator: AllocatorConfig{
			MaxAttempts: 3,
		},
		Validator: ValidatorConfig{
			MaxURLLength: 2048,
		},
		App: AppConfig{
			Environment: "development",
		},
		Log: logger.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the optional YAML file named by CONFIG_FILE, then applies
// environment variable overrides
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Set default BaseURL if not provided
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Server.Port)
	}
	cfg.Log.Environment = cfg.App.Environment

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getDurationEnv("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("DB_PATH", c.Store.Path)
	c.Store.DSN = getEnv("DATABASE_URL", c.Store.DSN)
	c.Store.Timeout = getDurationEnv("STORE_TIMEOUT", c.Store.Timeout)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getIntEnv("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)

	c.Cache.Enabled = getBoolEnv("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.TTL = getDurationEnv("CACHE_TTL", c.Cache.TTL)
	c.Cache.NegativeTTL = getDurationEnv("CACHE_NEGATIVE_TTL", c.Cache.NegativeTTL)

	c.Allocator.MaxAttempts = getIntEnv("ALLOCATOR_MAX_ATTEMPTS", c.Allocator.MaxAttempts)

	c.Auth.APIKey = getEnv("API_KEY", c.Auth.APIKey)

	c.Validator.MaxURLLength = getIntEnv("VALIDATOR_MAX_URL_LENGTH", c.Validator.MaxURLLength)
	c.Validator.AllowPrivateIPs = getBoolEnv("VALIDATOR_ALLOW_PRIVATE_IPS", c.Validator.AllowPrivateIPs)
	c.Validator.BlockedDomains = getListEnv("VALIDATOR_BLOCKED_DOMAINS", c.Validator.BlockedDomains)

	c.App.BaseURL = getEnv("BASE_URL", c.App.BaseURL)
	c.App.Environment = getEnv("ENVIRONMENT", c.App.Environment)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate port
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %s (must be 1-65535)", c.Server.Port)
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("database path cannot be empty")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("postgres driver requires DATABASE_URL")
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis driver requires REDIS_ADDR")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid store driver: %s (must be sqlite, postgres, redis, or memory)", c.Store.Driver)
	}

	if c.Store.Timeout <= 0 {
		return fmt.Errorf("invalid store timeout: %s", c.Store.Timeout)
	}

	if c.Cache.Enabled && c.Redis.Addr == "" {
		return errors.New("cache requires REDIS_ADDR")
	}

	if c.Allocator.MaxAttempts < 1 {
		return fmt.Errorf("invalid allocator max attempts: %d (must be at least 1)", c.Allocator.MaxAttempts)
	}

	if c.Validator.MaxURLLength < 1 {
		return fmt.Errorf("invalid max URL length: %d", c.Validator.MaxURLLength)
	}

	// Validate environment
	validEnvs := map[string]bool{
		"development": true,
		"production":  true,
		"testing":     true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, production, or testing)", c.App.Environment)
	}

	if c.IsProduction() && c.Auth.APIKey == "" {
		return errors.New("API_KEY is required in production")
	}

	// Validate log level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// ============================================================
// HELPER FUNCTIONS
// ============================================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

// getListEnv splits a comma-separated value, dropping empty items
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
