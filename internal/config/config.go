package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
// Note: This is a stateless configuration - no database or auth secrets needed
// Auth, billing, and user management are handled by the gateway
type Config struct {
	// Environment
	Environment string
	Port        string

	// LLM API Keys (used only when enhancement is enabled)
	OpenAIAPIKey string // OpenAI API key for GPT models
	GeminiAPIKey string // Google Gemini API key

	// Enhancement
	EnhancementEnabled bool          // Feature flag for external enrichment
	EnhancementModel   string        // Model name; the prefix selects the provider
	EnhancementTimeout time.Duration // Budget for a single enrichment call

	// Observability
	SentryDSN         string // Sentry DSN for error tracking
	LangfusePublicKey string // Langfuse public key
	LangfuseSecretKey string // Langfuse secret key
	LangfuseHost      string // Langfuse host URL (cloud or self-hosted)
	LangfuseEnabled   bool   // Feature flag for Langfuse

	// Auth mode
	// - "none": No auth (self-hosted, local dev)
	// - "gateway": Trust X-User-* headers from the cloud gateway
	AuthMode string
}

func Load() *Config {
	return &Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		Port:               getEnv("PORT", "8080"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		EnhancementEnabled: getEnv("ENHANCEMENT_ENABLED", "false") == "true",
		EnhancementModel:   getEnv("ENHANCEMENT_MODEL", "gpt-5-mini"),
		EnhancementTimeout: getDurationSeconds("ENHANCEMENT_TIMEOUT_SECONDS", 20),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
		LangfusePublicKey:  getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey:  getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:       getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:    getEnv("LANGFUSE_ENABLED", "false") == "true",
		AuthMode:           getEnv("AUTH_MODE", "none"), // Default to no auth for self-hosted
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getDurationSeconds(key string, defaultSeconds int) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}

// IsGatewayMode returns true if running behind the cloud gateway
func (c *Config) IsGatewayMode() bool {
	return c.AuthMode == "gateway"
}
