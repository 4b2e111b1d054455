// Package config provides configuration for the agentflow server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MockMode is the GOGO_MODE value that serves the built-in mock backend.
const MockMode = "MOCK"

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Scenario catalog
	ScenarioFile string

	// Simulation
	TimeScale     float64
	StallTimeout  time.Duration
	MaxActiveRuns int

	// Streaming backend
	StreamBackendURL  string
	StreamMarker      string
	ProtocolTolerance int

	// Logging
	LogLevel  string
	LogFormat string

	Mode string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", "file:agentflow.db?cache=shared&mode=rwc"),
		ScenarioFile:      getEnv("SCENARIO_FILE", ""),
		TimeScale:         getEnvFloat("TIME_SCALE", 1.0),
		StallTimeout:      time.Duration(getEnvInt("STALL_TIMEOUT_MS", 0)) * time.Millisecond,
		MaxActiveRuns:     getEnvInt("MAX_ACTIVE_RUNS", 0),
		StreamBackendURL:  getEnv("STREAM_BACKEND_URL", ""),
		StreamMarker:      getEnvRaw("STREAM_MARKER", "data: "),
		ProtocolTolerance: getEnvInt("PROTOCOL_TOLERANCE", 1),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
		Mode:              strings.ToUpper(getEnv("GOGO_MODE", "")),
	}
	if cfg.StreamBackendURL == "" && cfg.MockEnabled() {
		cfg.StreamBackendURL = fmt.Sprintf("http://localhost:%d/mock/invoice/stream", cfg.HTTPPort)
	}
	return cfg
}

// MockEnabled reports whether the mock streaming backend is served.
func (c *Config) MockEnabled() bool {
	return c.Mode == MockMode
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvRaw keeps surrounding whitespace, which is significant for markers.
func getEnvRaw(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
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

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultVal
}
