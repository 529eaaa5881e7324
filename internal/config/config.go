// Package config loads faqbot settings from the environment.
//
// A .env file in the working directory is applied first (when present), then
// FAQBOT_* variables. Every setting has a default so a bare environment works.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultFallbackAnswer is returned when no tier produces a match.
const DefaultFallbackAnswer = "Sorry, I don't know the answer to that yet."

// Config holds all runtime settings.
type Config struct {
	DBPath         string
	Addr           string
	ServerURL      string
	FallbackAnswer string
	LogLevel       slog.Level
	LogJSON        bool
	ChatTimeout    time.Duration
	LogBuffer      int
}

// Load reads the .env file (if any) and the environment.
func Load() (Config, error) {
	// Missing .env is not an error; env vars alone are enough.
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()

	cfg := Config{
		DBPath:         getenv("FAQBOT_DB", filepath.Join(home, ".faqbot", "faqbot.db")),
		Addr:           getenv("FAQBOT_ADDR", ":8080"),
		ServerURL:      getenv("FAQBOT_SERVER_URL", "http://localhost:8080"),
		FallbackAnswer: getenv("FAQBOT_FALLBACK_ANSWER", DefaultFallbackAnswer),
		LogLevel:       slog.LevelInfo,
		ChatTimeout:    10 * time.Second,
		LogBuffer:      256,
	}

	if v := os.Getenv("FAQBOT_LOG_LEVEL"); v != "" {
		level, err := ParseLevel(v)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("FAQBOT_LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse FAQBOT_LOG_JSON: %w", err)
		}
		cfg.LogJSON = b
	}

	if v := os.Getenv("FAQBOT_CHAT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse FAQBOT_CHAT_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("FAQBOT_CHAT_TIMEOUT must be positive, got %s", d)
		}
		cfg.ChatTimeout = d
	}

	if v := os.Getenv("FAQBOT_LOG_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse FAQBOT_LOG_BUFFER: %w", err)
		}
		if n < 1 {
			return Config{}, fmt.Errorf("FAQBOT_LOG_BUFFER must be at least 1, got %d", n)
		}
		cfg.LogBuffer = n
	}

	return cfg, nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
