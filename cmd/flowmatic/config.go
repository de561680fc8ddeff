package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all flowmatic server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath         string `json:"db_path"`
	DefinitionsDir string `json:"definitions_dir"`
	LogLevel       string `json:"log_level"`
	PoolSize       int    `json:"pool_size"`
	RetryAttempts  int    `json:"retry_attempts"`

	CRMBaseURL        string `json:"crm_base_url"`
	CRMAPIKey         string `json:"crm_api_key"`
	VisionBaseURL     string `json:"vision_base_url"`
	VisionAPIKey      string `json:"vision_api_key"`
	QuickbooksBaseURL string `json:"quickbooks_base_url"`
	QuickbooksAPIKey  string `json:"quickbooks_api_key"`
	NotifyBaseURL     string `json:"notify_base_url"`
	NotifyAPIKey      string `json:"notify_api_key"`
}

func defaultConfig() Config {
	return Config{
		DBPath:         filepath.Join(flowmaticDir(), "flowmatic.db"),
		DefinitionsDir: filepath.Join(flowmaticDir(), "workflows"),
		LogLevel:       "info",
		PoolSize:       10,
		RetryAttempts:  3,
	}
}

func flowmaticDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowmatic"
	}
	return filepath.Join(home, ".flowmatic")
}

func settingsPath() string {
	return filepath.Join(flowmaticDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWMATIC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWMATIC_DEFINITIONS_DIR"); v != "" {
		cfg.DefinitionsDir = v
	}
	if v := os.Getenv("FLOWMATIC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWMATIC_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("FLOWMATIC_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryAttempts = n
		}
	}
	if v := os.Getenv("FLOWMATIC_CRM_BASE_URL"); v != "" {
		cfg.CRMBaseURL = v
	}
	if v := os.Getenv("FLOWMATIC_CRM_API_KEY"); v != "" {
		cfg.CRMAPIKey = v
	}
	if v := os.Getenv("FLOWMATIC_VISION_BASE_URL"); v != "" {
		cfg.VisionBaseURL = v
	}
	if v := os.Getenv("FLOWMATIC_VISION_API_KEY"); v != "" {
		cfg.VisionAPIKey = v
	}
	if v := os.Getenv("FLOWMATIC_QUICKBOOKS_BASE_URL"); v != "" {
		cfg.QuickbooksBaseURL = v
	}
	if v := os.Getenv("FLOWMATIC_QUICKBOOKS_API_KEY"); v != "" {
		cfg.QuickbooksAPIKey = v
	}
	if v := os.Getenv("FLOWMATIC_NOTIFY_BASE_URL"); v != "" {
		cfg.NotifyBaseURL = v
	}
	if v := os.Getenv("FLOWMATIC_NOTIFY_API_KEY"); v != "" {
		cfg.NotifyAPIKey = v
	}

	return cfg
}
