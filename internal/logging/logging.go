// Package logging builds the process-wide zerolog logger the loader and
// its subcommands share.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup returns a logger writing to stderr. "json" emits one structured
// object per line for log collectors; anything else, including an
// unrecognized format string, gets the human console writer.
func Setup(format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}
