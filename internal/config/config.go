package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"

	"github.com/franckalain/doctorfood/internal/ml"
)

// Storage drivers for the profile record
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port                   string `json:"port" env:"HTTP_PORT"`
		StaticDir              string `json:"static_dir" env:"STATIC_DIR"`
		Debug                  bool   `json:"debug" env:"DEBUG"`
		MaxImageBytes          int    `json:"max_image_bytes" env:"MAX_IMAGE_BYTES"`
		AnalysisTimeoutSeconds int    `json:"analysis_timeout_seconds" env:"ANALYSIS_TIMEOUT_SECONDS"`
	} `json:"server"`

	Database struct {
		Path string `json:"path" env:"DATABASE_PATH"`
	} `json:"database"`

	Storage struct {
		Driver        string `json:"driver" env:"STORAGE_DRIVER"` // "sqlite" or "redis"
		RedisAddr     string `json:"redis_addr" env:"REDIS_ADDR"`
		RedisPassword string `json:"redis_password" env:"REDIS_PASSWORD"`
		RedisDB       int    `json:"redis_db" env:"REDIS_DB"`
		RedisPrefix   string `json:"redis_prefix" env:"REDIS_PREFIX"`
	} `json:"storage"`

	ML ml.Config `json:"ml"`
}

// LoadConfig loads configuration from a JSON file, then applies environment
// overrides. A missing file is fine when the environment carries the rest.
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Handle missing values
	if config.Server.Port == "" {
		return nil, fmt.Errorf("server port is not set in config file")
	}
	if config.Server.StaticDir == "" {
		config.Server.StaticDir = "./static"
	}
	if config.Server.MaxImageBytes <= 0 {
		config.Server.MaxImageBytes = 10 << 20
	}
	if config.Database.Path == "" {
		config.Database.Path = "doctorfood.db"
	}
	if config.Storage.Driver == "" {
		config.Storage.Driver = DriverSQLite
	}
	if config.Storage.RedisPrefix == "" {
		config.Storage.RedisPrefix = "doctorfood:"
	}
	config.ML.ApplyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("redis storage selected but redis_addr is not set")
		}
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	return c.ML.Validate()
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("DOCTORFOOD_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	// Finally, try current directory
	return "config.json"
}
