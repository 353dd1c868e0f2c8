package core

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// init initializes the logging configuration based on the CBIR_LOG environment variable.
// It sets the global logging level to Disabled, Debug, or Info.
func init() {
	zerolog.SetGlobalLevel(LevelFromEnv(os.Getenv("CBIR_LOG")))
}

// LevelFromEnv maps a CBIR_LOG value to a zerolog level.
// "off" and "0" disable logging, "full" enables debug output, anything else means info.
func LevelFromEnv(value string) zerolog.Level {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "off", "0":
		return zerolog.Disabled
	case "full":
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
