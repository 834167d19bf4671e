// Package logging provides application-wide logging configuration and the
// run-scoped loggers the orchestrator stamps its events with.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var debugEnabled bool

// Init initializes the global logger.
func Init(debug bool) {
	debugEnabled = debug
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})
}

// DebugEnabled reports whether debug logging is enabled. Callers that mirror
// agent output to the console gate on it.
func DebugEnabled() bool {
	return debugEnabled
}

// ForRun returns a logger that stamps every event with the run id, so one
// run's lifecycle can be followed through interleaved output.
func ForRun(runID string) zerolog.Logger {
	return log.With().Str("run_id", runID).Logger()
}
