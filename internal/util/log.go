package util

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger writes JSON lines to stdout at level, tagged with service when it is set.
func NewLogger(level, service string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	ctx := zerolog.New(os.Stdout).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Logger().Level(lvl)
}
