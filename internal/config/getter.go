// Package config provides configuration and shared test utilities for the EventFlow application.
//
// All services read their settings from the environment. The getters in this
// file never fail: a missing variable or an unparseable value falls back to
// the supplied default, and each package validates the assembled config as a
// whole afterwards.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvStr returns the environment variable value, or defaultValue if the
// variable is unset or empty.
//
//	host := config.GetEnvStr("EVENTFLOW_API_HOST", "0.0.0.0")
func GetEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// GetEnvInt returns the environment variable parsed as an int, or
// defaultValue if the variable is unset or not a valid integer.
//
//	port := config.GetEnvInt("EVENTFLOW_API_PORT", 8000)
func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetEnvInt64 returns the environment variable parsed as an int64, or
// defaultValue if the variable is unset or not a valid integer. Used for
// byte-size settings that can exceed the int range on 32-bit builds.
func GetEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetEnvBool returns the environment variable parsed as a bool, or
// defaultValue if the variable is unset or unrecognized.
//
// Accepted spellings (case-insensitive): "true", "1", "yes" and
// "false", "0", "no".
func GetEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// GetEnvDuration returns the environment variable parsed with
// time.ParseDuration, or defaultValue if the variable is unset or invalid.
//
//	interval := config.GetEnvDuration("EVENTFLOW_RATE_LIMIT_IDLE_TIMEOUT", time.Hour)
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetEnvLogLevel returns the environment variable mapped to a slog.Level, or
// defaultValue if the variable is unset or unrecognized. "warning" is
// accepted as an alias for "warn".
func GetEnvLogLevel(key string, defaultValue slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultValue
	}
}

// ParseCommaSeparatedList splits a comma-separated value into trimmed,
// non-empty entries. Used for CORS origin lists and broker address lists.
func ParseCommaSeparatedList(input string) []string {
	if input == "" {
		return []string{}
	}

	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
