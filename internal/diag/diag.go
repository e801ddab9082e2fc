// Package diag builds the diagnostic loggers the transports use for
// their own debug output. Diagnostics go to stderr and are fully
// disabled unless the transport's debug flag is set.
package diag

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger tagged with the transport name. When
// debug is false the returned logger discards everything.
func New(transport string, debug bool) zerolog.Logger {
	if !debug {
		return zerolog.New(io.Discard).Level(zerolog.Disabled)
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Str("transport", transport).Logger()
}
