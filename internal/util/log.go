// Package util provides logging, traffic stats and small helpers shared by the
// relay server and the CLI.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

// logger is the shared leveled logger. Output goes to stderr-like terminal
// output through pterm so it interleaves cleanly with spinners and bars.
var logger = pterm.DefaultLogger.
	WithTime(true).
	WithTimeFormat("02 Jan 15:04:05").
	WithMaxWidth(1000)

func logf(level pterm.LogLevel, format string, args ...any) {
	if !logger.CanPrint(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	switch level {
	case pterm.LogLevelDebug:
		logger.Debug(msg)
	case pterm.LogLevelWarn:
		logger.Warn(msg)
	case pterm.LogLevelError:
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}

func LogDebug(format string, args ...any)   { logf(pterm.LogLevelDebug, format, args...) }
func LogInfo(format string, args ...any)    { logf(pterm.LogLevelInfo, format, args...) }
func LogWarning(format string, args ...any) { logf(pterm.LogLevelWarn, format, args...) }
func LogError(format string, args ...any)   { logf(pterm.LogLevelError, format, args...) }

// LogSuccess reports a finished file or room operation. It is printed with
// the success prefix rather than as a log line so it stands out in the CLI.
func LogSuccess(format string, args ...any) {
	pterm.Success.Printfln(format, args...)
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	logger.Level = pterm.LogLevelDebug
}
