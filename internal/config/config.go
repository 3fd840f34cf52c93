package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	Env                string
	GinMode            string
	GeminiAPIKey       string
	GeminiModel        string
	DiagnosisTimeout   time.Duration
	SessionIdleTimeout time.Duration
	EnableDB           bool
	DatabaseURL        string
	CORSOrigins        []string
	MaxBodyBytes       int64
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "production"),
		GinMode:      getEnv("GIN_MODE", "release"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-pro"),
		EnableDB:     strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.DiagnosisTimeout, err = time.ParseDuration(getEnv("DIAGNOSIS_TIMEOUT", "90s")); err != nil {
		return nil, fmt.Errorf("DIAGNOSIS_TIMEOUT: %w", err)
	}
	if cfg.SessionIdleTimeout, err = time.ParseDuration(getEnv("SESSION_IDLE_TIMEOUT", "2h")); err != nil {
		return nil, fmt.Errorf("SESSION_IDLE_TIMEOUT: %w", err)
	}
	if cfg.MaxBodyBytes, err = strconv.ParseInt(getEnv("MAX_BODY_BYTES", "1048576"), 10, 64); err != nil {
		return nil, fmt.Errorf("MAX_BODY_BYTES: %w", err)
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}

	return cfg, nil
}

// RequireGemini fails when no API key is configured. Commands that talk to
// the model call it; health checks and tests do not need a key.
func (c *Config) RequireGemini() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
