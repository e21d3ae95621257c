package util

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger("debug", "engine")
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger("invalid", "")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}

	logger = NewLogger("", "")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info for empty level, got %s", logger.GetLevel())
	}
}
