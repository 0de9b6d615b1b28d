// Package env reads configuration from environment variables, falling back to defaults when a variable is missing or unusable.
package env

import (
	"log/slog"
	"os"
	"strings"

	"github.com/saylorsolutions/propagate/slogx"
)

func lookup(key string) (string, bool) {
	for _, kv := range os.Environ() {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Val will attempt to get an environment variable value using the given key.
// If the variable isn't set, or is empty, then the defaultVal will be returned.
// Note that keys are compared case-insensitive.
func Val(key string, defaultVal string) string {
	val, ok := lookup(key)
	if !ok {
		return defaultVal
	}
	trimmed := strings.TrimSpace(val)
	if len(trimmed) == 0 {
		return defaultVal
	}
	return trimmed
}

var (
	DefaultTrue  = []string{"1", "yes", "true", "on"}  // DefaultTrue are the values considered "true" when using [Bool], and can be changed.
	DefaultFalse = []string{"0", "no", "false", "off"} // DefaultFalse are the values considered "false" when using [Bool], and can be changed.
)

// Bool interprets an environment variable as a boolean, using [DefaultTrue] and [DefaultFalse].
// The defaultVal will be returned if the variable isn't set, is empty, or can't be a boolean value.
func Bool(key string, defaultVal bool) bool {
	sval := Val(key, "")
	if len(sval) == 0 {
		return defaultVal
	}
	for _, v := range DefaultTrue {
		if strings.EqualFold(sval, v) {
			return true
		}
	}
	for _, v := range DefaultFalse {
		if strings.EqualFold(sval, v) {
			return false
		}
	}
	return defaultVal
}

// Level interprets an environment variable as a log level name accepted by [slogx.ParseLevel].
// The defaultVal will be returned if the variable isn't set, is empty, or isn't a level name.
func Level(key string, defaultVal slog.Level) slog.Level {
	sval := Val(key, "")
	if len(sval) == 0 {
		return defaultVal
	}
	level, err := slogx.ParseLevel(sval)
	if err != nil {
		return defaultVal
	}
	return level
}
