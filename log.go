package herisson

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// logger is the package logger. Everything the runtime reports goes through
// it; applications redirect or silence it with SetLogOutput / SetLogLevel.
var logger = log.NewWithOptions(os.Stderr, log.Options{
	Prefix:          "herisson",
	ReportTimestamp: true,
	Level:           log.InfoLevel,
})

// SetLogLevel sets the minimum level the runtime logs at.
// Accepted levels are "debug", "info", "warn", "error" and "fatal".
func SetLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}

// SetLogOutput redirects runtime logging to w. Pass io.Discard to silence it.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}
