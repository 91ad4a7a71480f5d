// Package logging builds the process-wide zerolog logger, the same
// structured-logging approach the teacher's server variants use.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger from a level string ("debug", "info", "warn",
// "error") and a format ("json" or "pretty"). An unrecognized level falls
// back to info rather than failing; config validation is expected to have
// already rejected bad input before this is called.
func New(level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if format == "pretty" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).Level(parsed).With().Timestamp().Logger()
}
