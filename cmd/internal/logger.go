package internal

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a human readable logger writing to w at the named level.
// An empty level means warn.
func NewLogger(w io.Writer, level string) (zerolog.Logger, error) {
	if len(level) == 0 {
		level = zerolog.WarnLevel.String()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.TimeOnly,
		NoColor:    true,
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
