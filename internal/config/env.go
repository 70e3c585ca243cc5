// Package config reads service configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
)

// Int reads a positive integer from the environment. Unset, malformed, or
// non-positive values fall back to the default, with malformed ones logged so
// a typo does not silently change behavior.
func Int(logger *slog.Logger, name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		logger.Error("invalid value, using default", "name", name, "value", raw, "default", fallback)
		return fallback
	}

	return value
}
