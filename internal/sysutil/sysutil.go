// Package sysutil holds process-level setup shared by the server binary:
// the global zerolog logger and the relay instance identity.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel configures the global zerolog level based on a string value.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// SetupLogger sets the level and replaces the global logger. Pretty output
// goes through a console writer; otherwise JSON lines are written to w.
// Every line carries the instance id so logs from several relay nodes can
// be told apart.
func SetupLogger(w io.Writer, level string, pretty bool, instanceID string) {
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("instance", instanceID).Logger()
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// hostname is swapped in tests.
var hostname = os.Hostname

// InstanceID names this process for logs and traces: RELAY_INSTANCE_ID,
// then the host name, then a random UUID.
func InstanceID() string {
	host, _ := hostname()
	return FirstNonEmpty(os.Getenv("RELAY_INSTANCE_ID"), host, uuid.NewString())
}
