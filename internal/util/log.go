// Package util provides the console logger and process-wide traffic stats.
package util

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger, which writes
// to stderr unless SetOutput says otherwise.

func LogDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

// LogSuccess marks a milestone such as the listener coming up.
func LogSuccess(format string, args ...any) {
	pterm.DefaultLogger.Info(pterm.Green(fmt.Sprintf(format, args...)))
}

func LogWarning(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// DebugEnabled reports whether debug messages are shown, so callers can skip
// building expensive ones.
func DebugEnabled() bool {
	return pterm.DefaultLogger.Level <= pterm.LogLevelDebug
}

// SetOutput redirects console logging.
func SetOutput(w io.Writer) {
	pterm.DefaultLogger.Writer = w
}
