package core

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the default component logger. The developer logging
// flag gates connect/disconnect/listen chatter; error logging stays on
// regardless.
func NewLogger(component string, dev bool) zerolog.Logger {
	level := zerolog.ErrorLevel
	if dev {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).
		With().Timestamp().Str("component", component).Logger().
		Level(level)
}
