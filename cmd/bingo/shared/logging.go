package shared

import (
	"os"

	"github.com/charmbracelet/log"
)

// SetupLogger returns a stderr logger at level, falling back to info for an
// empty or unknown level.
func SetupLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
