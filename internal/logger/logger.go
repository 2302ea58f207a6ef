// Package logger configures the process-wide charmbracelet logger and
// component loggers used by the controller and the command-line tools.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Logger is the global logger.
var Logger *log.Logger

func init() {
	Logger = log.New(os.Stderr)
	Logger.SetTimeFormat("15:04:05.000")
	Logger.SetLevel(log.InfoLevel)
}

// Configure sets level and destination. An empty level falls back to
// FREQTAG_LOG_LEVEL, then info. An empty file logs to stderr.
func Configure(level string, file string) error {
	if level == "" {
		level = strings.ToLower(os.Getenv("FREQTAG_LOG_LEVEL"))
	}

	var output io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		output = f
	}

	Logger = log.New(output)
	Logger.SetTimeFormat("15:04:05.000")
	Logger.SetLevel(ParseLevel(level))
	return nil
}

// ParseLevel maps a level name to a log.Level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// NewComponent returns a prefixed logger sharing the global level, with
// styling for the keys the controller logs most.
func NewComponent(prefix string) *log.Logger {
	styles := log.DefaultStyles()
	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("33")).
		Foreground(lipgloss.Color("15"))
	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("214")).
		Foreground(lipgloss.Color("15"))
	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("196")).
		Foreground(lipgloss.Color("15"))
	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("240")).
		Foreground(lipgloss.Color("15"))

	styles.Keys["state"] = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	styles.Keys["trial"] = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styles.Keys["block"] = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styles.Keys["mode"] = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	styles.Keys["err"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styles.Values["state"] = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	styles.Values["err"] = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	l := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	l.SetStyles(styles)
	l.SetLevel(Logger.GetLevel())
	return l
}

// Discard returns a logger that writes nothing, for tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
