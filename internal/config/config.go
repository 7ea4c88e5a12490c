// Package config provides configuration loading for forceflow.
package config

import (
	"os"
	"strconv"
	"time"
)

// OrgConfig holds target-org connection configuration.
type OrgConfig struct {
	// Org connection
	InstanceURL string
	SessionID   string
	APIVersion  string

	// Transport tuning
	RequestTimeout time.Duration
	RateLimit      float64

	// Optional relational mirror for staged rows
	MirrorURL string
}

// LoadOrgConfig loads configuration from environment.
func LoadOrgConfig() *OrgConfig {
	return &OrgConfig{
		InstanceURL:    getEnv("FORCEFLOW_INSTANCE_URL", ""),
		SessionID:      getEnv("FORCEFLOW_SESSION_ID", ""),
		APIVersion:     getEnv("FORCEFLOW_API_VERSION", "58.0"),
		RequestTimeout: time.Duration(getEnvInt("FORCEFLOW_TIMEOUT_SECS", 30)) * time.Second,
		RateLimit:      getEnvFloat("FORCEFLOW_RATE_LIMIT", 10.0),
		MirrorURL:      getEnv("FORCEFLOW_MIRROR_URL", ""),
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
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
