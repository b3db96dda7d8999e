package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// NewLogger returns the service-wide JSON logger for one component, writing
// to stdout. EXA_LOG_LEVEL selects the level by its zerolog name; unset or
// unparseable values fall back to info.
func NewLogger(component string) zerolog.Logger {
	level, err := zerolog.ParseLevel(os.Getenv("EXA_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
