package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	LogLevel       string        `mapstructure:"log_level"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AdminToken     string        `mapstructure:"admin_token"` // bearer token for /api/v1/catalog/*
}

// CatalogConfig selects and configures the product catalog source
type CatalogConfig struct {
	Source      string        `mapstructure:"source"` // "api", "database" or "file"
	APIURL      string        `mapstructure:"api_url"`
	AccessToken string        `mapstructure:"access_token"`
	DBDriver    string        `mapstructure:"db_driver"` // "sqlite3" or "pgx"
	DBDSN       string        `mapstructure:"db_dsn"`
	FilePath    string        `mapstructure:"file_path"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// MatchingConfig holds the matcher and normalizer tunables
type MatchingConfig struct {
	DisplayLimit        int     `mapstructure:"display_limit"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	OverlapFraction     float64 `mapstructure:"overlap_fraction"`
	MinOverlapWindow    int     `mapstructure:"min_overlap_window"`
	EnableCorrection    bool    `mapstructure:"enable_correction"`
	EnableDebugLogging  bool    `mapstructure:"enable_debug_logging"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute per client IP
	API   int `mapstructure:"api"`    // outbound catalog API requests per second
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/gemsearch/")

	// GEMSEARCH_SERVER_PORT -> server.port
	v.SetEnvPrefix("GEMSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory if present.
// Variables already set in the environment are never overridden.
func loadEnvFile() error {
	err := godotenv.Load()
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values. Every key gets a default so
// that AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.admin_token", "")

	// Catalog defaults
	v.SetDefault("catalog.source", "api")
	v.SetDefault("catalog.api_url", "")
	v.SetDefault("catalog.access_token", "")
	v.SetDefault("catalog.db_driver", "sqlite3")
	v.SetDefault("catalog.db_dsn", "")
	v.SetDefault("catalog.file_path", "")
	v.SetDefault("catalog.snapshot_ttl", "5m")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "24h")

	// Matching defaults
	v.SetDefault("matching.display_limit", 20)
	v.SetDefault("matching.similarity_threshold", 0.6)
	v.SetDefault("matching.overlap_fraction", 0.7)
	v.SetDefault("matching.min_overlap_window", 5)
	v.SetDefault("matching.enable_correction", true)
	v.SetDefault("matching.enable_debug_logging", false)

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)
	v.SetDefault("ratelimit.api", 2)
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Catalog.Source {
	case "api":
		if config.Catalog.APIURL == "" {
			return fmt.Errorf("catalog API URL is required (set GEMSEARCH_CATALOG_API_URL)")
		}
	case "database":
		if config.Catalog.DBDriver != "sqlite3" && config.Catalog.DBDriver != "pgx" {
			return fmt.Errorf("catalog db driver must be 'sqlite3' or 'pgx', got: %s", config.Catalog.DBDriver)
		}
		if config.Catalog.DBDSN == "" {
			return fmt.Errorf("catalog DSN is required when source is 'database'")
		}
	case "file":
		if config.Catalog.FilePath == "" {
			return fmt.Errorf("catalog file path is required when source is 'file'")
		}
	default:
		return fmt.Errorf("catalog source must be 'api', 'database' or 'file', got: %s", config.Catalog.Source)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache type is 'redis'")
	}

	if t := config.Matching.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("similarity threshold must be within [0, 1], got: %v", t)
	}

	if f := config.Matching.OverlapFraction; f < 0 || f > 1 {
		return fmt.Errorf("overlap fraction must be within [0, 1], got: %v", f)
	}

	if config.Matching.DisplayLimit < 0 {
		return fmt.Errorf("display limit must not be negative, got: %d", config.Matching.DisplayLimit)
	}

	return nil
}
