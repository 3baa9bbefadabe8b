// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// Setup installs the global logger. format is "console" (default) or "json".
func Setup(level, format string) error {
	return SetupWriter(level, format, os.Stderr)
}

// SetupWriter is Setup with an explicit destination
func SetupWriter(level, format string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var writer log.Writer
	timeFormat := ""
	switch strings.ToLower(format) {
	case "", "console":
		writer = &log.ConsoleWriter{
			Writer:         w,
			ColorOutput:    isTerminal(w),
			EndWithMessage: true,
		}
		timeFormat = "15:04:05"
	case "json":
		writer = &log.IOWriter{Writer: w}
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.DefaultLogger = log.Logger{
		Level:      lvl,
		TimeFormat: timeFormat,
		Writer:     writer,
	}
	return nil
}

// ParseLevel accepts debug, info, warn, error, case-insensitively. Empty
// means info.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return log.IsTerminal(f.Fd())
}
