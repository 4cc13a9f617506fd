package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv names the environment variable that selects the log level.
const LevelEnv = "IMAGE_INSPECT_LOG_LEVEL"

// Init initializes the global logger. The level comes from override when it
// is non-empty, otherwise from IMAGE_INSPECT_LOG_LEVEL: debug, info, warn,
// error (default: info). Output is a human-readable console stream on w.
func Init(w io.Writer, override string) {
	level := override
	if level == "" {
		level = os.Getenv(LevelEnv)
	}
	zerolog.SetGlobalLevel(ParseLevel(level))

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
}

// ParseLevel maps a level name to a zerolog level. Unknown names map to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
