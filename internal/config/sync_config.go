package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SyncConfig holds synchronization configuration
type SyncConfig struct {
	// ============ BASIC SETTINGS ============
	Enabled bool `json:"enabled"`

	// ============ SCHEDULING ============
	AutoSyncEnabled     bool `json:"auto_sync_enabled"`
	AutoSyncInterval    int  `json:"auto_sync_interval"` // seconds
	SyncOnStartup       bool `json:"sync_on_startup"`
	HealthCheckInterval int  `json:"health_check_interval"` // seconds

	// ============ LIMITS ============
	SyncTimeout int `json:"sync_timeout"` // seconds, per cycle
	MaxRetries  int `json:"max_retries"`  // attempt ceiling per outbox entry

	// ============ ENTITIES ============
	Entities map[string]EntitySyncConfig `json:"entities"`
}

// EntitySyncConfig holds sync configuration for a specific entity type
type EntitySyncConfig struct {
	Enabled  bool `json:"enabled"`
	Priority int  `json:"priority"` // 1-10, where 10 = highest; pulls run high to low
}

// LoadSyncConfig loads sync configuration from environment or file
func LoadSyncConfig() *SyncConfig {
	// Try to load from file first
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if cfg, err := loadSyncConfigFromFile(configPath); err == nil {
			return cfg
		}
	}

	// Otherwise use defaults
	return getDefaultSyncConfig()
}

// loadSyncConfigFromFile loads sync config from JSON file
func loadSyncConfigFromFile(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg SyncConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Enabled: getBoolEnv("SYNC_ENABLED", true),

		AutoSyncEnabled:     getBoolEnv("SYNC_AUTO_ENABLED", true),
		AutoSyncInterval:    getIntEnv("SYNC_AUTO_INTERVAL", 300),
		SyncOnStartup:       getBoolEnv("SYNC_ON_STARTUP", true),
		HealthCheckInterval: getIntEnv("SYNC_HEALTH_INTERVAL", 30),

		SyncTimeout: getIntEnv("SYNC_TIMEOUT", 300),
		MaxRetries:  getIntEnv("SYNC_MAX_RETRIES", 3),

		Entities: getDefaultEntityConfigs(),
	}
}

// getDefaultEntityConfigs returns default entity sync configs.
// Parent entities carry higher priority so a single cycle resolves
// references in order (location before asset before work order).
func getDefaultEntityConfigs() map[string]EntitySyncConfig {
	return map[string]EntitySyncConfig{
		"locations": {
			Enabled:  true,
			Priority: 10,
		},
		"assets": {
			Enabled:  true,
			Priority: 9,
		},
		"parts": {
			Enabled:  true,
			Priority: 8,
		},
		"users": {
			Enabled:  true,
			Priority: 7,
		},
		"work_orders": {
			Enabled:  true,
			Priority: 6,
		},
		"work_order_steps": {
			Enabled:  true,
			Priority: 5,
		},
	}
}

// Helper functions for environment variables

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
