// Package config provides configuration for the agent.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the agent configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Procurement backend
	BackendURL     string
	BackendAPIKey  string
	BackendTimeout time.Duration

	// Language understanding
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Resolution
	MaxClarifyRounds int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:      getEnv("DATABASE_URL", "file:agent.db?cache=shared&mode=rwc"),
		BackendURL:       getEnv("BACKEND_URL", "http://localhost:8000"),
		BackendAPIKey:    getEnv("BACKEND_API_KEY", ""),
		BackendTimeout:   time.Duration(getEnvInt("BACKEND_TIMEOUT_MS", 30000)) * time.Millisecond,
		LLMBaseURL:       getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		MaxClarifyRounds: getEnvInt("MAX_CLARIFY_ROUNDS", 3),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
