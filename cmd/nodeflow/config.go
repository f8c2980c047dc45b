package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all nodeflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	LogLevel     string `json:"log_level"`
	HistoryLimit int    `json:"history_limit"`
	FeedsEnabled bool   `json:"feeds_enabled"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:     "info",
		HistoryLimit: 0, // 0 means the manager's default
		FeedsEnabled: true,
	}
}

func nodeflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nodeflow"
	}
	return filepath.Join(home, ".nodeflow")
}

func settingsPath() string {
	return filepath.Join(nodeflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("NODEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NODEFLOW_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}
	if v := os.Getenv("NODEFLOW_FEEDS"); v != "" {
		cfg.FeedsEnabled = v == "true" || v == "1"
	}

	return cfg
}
