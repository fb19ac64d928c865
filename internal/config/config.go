package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tracevia/cmmsgo/internal/utils"
)

// Config holds all agent configuration
type Config struct {
	NodeEnv    string
	Port       string
	InstanceID string
	APISecret  string
	Remote     RemoteConfig
	Database   DatabaseConfig
}

// RemoteConfig holds the remote CMMS API connection settings
type RemoteConfig struct {
	BaseURL     string
	TokenSecret string
	Timeout     int // seconds
}

// DatabaseConfig holds local store configuration
type DatabaseConfig struct {
	Driver   string // postgres (embedded-capable) or sqlite
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Path     string // sqlite file path
	Alter    bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	remoteURL := os.Getenv("REMOTE_API_URL")
	if remoteURL == "" {
		return nil, fmt.Errorf("REMOTE_API_URL is required")
	}

	return &Config{
		NodeEnv:    getEnv("NODE_ENV", "development"),
		Port:       getEnv("PORT", "3310"),
		InstanceID: utils.LoadOrCreateInstanceID(),
		APISecret:  os.Getenv("LOCAL_API_SECRET"),
		Remote: RemoteConfig{
			BaseURL:     remoteURL,
			TokenSecret: os.Getenv("REMOTE_TOKEN_SECRET"),
			Timeout:     getIntEnv("REMOTE_TIMEOUT", 15),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "cmms_agent"),
			Path:     getEnv("SQLITE_PATH", "./cmms_agent.db"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
