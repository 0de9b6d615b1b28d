// Package slogx has [slog] helpers shared by the rest of the module: extra levels, an in-memory recording handler, and handler composition.
package slogx

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	// LevelTrace is below [slog.LevelDebug], for very chatty output like per-listener invocations.
	LevelTrace = slog.LevelDebug - 4
	// LevelCheckpoint sits between [slog.LevelDebug] and [slog.LevelInfo], for coarse progress markers.
	LevelCheckpoint = slog.LevelDebug + 2
)

var levelNames = map[slog.Level]string{
	LevelTrace:      "TRACE",
	LevelCheckpoint: "CHECKPOINT",
}

// LevelName returns the display name of a level, including the custom levels in this package.
func LevelName(level slog.Level) string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return level.String()
}

// ParseLevel reads a level name case-insensitively.
// Accepted names are trace, debug, checkpoint, info, warn, and error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "checkpoint":
		return LevelCheckpoint, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level '%s'", name)
	}
	return level, nil
}

// ReplaceLevelNames can be used as [slog.HandlerOptions.ReplaceAttr] so custom levels print with their own names instead of "DEBUG-4".
func ReplaceLevelNames(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key != slog.LevelKey {
		return attr
	}
	level, ok := attr.Value.Any().(slog.Level)
	if !ok {
		return attr
	}
	attr.Value = slog.StringValue(LevelName(level))
	return attr
}
