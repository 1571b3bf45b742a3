package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger defines the interface for logging throughout the application.
// Different implementations can be used for different contexts (console, silent, structured, etc.)
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// ConsoleLogger writes human-readable logs with a level prefix.
// Info and Debug go to Out, Error goes to Err.
type ConsoleLogger struct {
	Out     io.Writer
	Err     io.Writer
	Verbose bool
}

// NewConsoleLogger returns a ConsoleLogger writing to stderr. Progress lines
// stay off stdout so the report can be piped.
func NewConsoleLogger() *ConsoleLogger {
	return &ConsoleLogger{Out: os.Stderr, Err: os.Stderr}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	fmt.Fprintf(c.Out, "[INFO] "+msg+"\n", args...)
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	fmt.Fprintf(c.Err, "[ERROR] "+msg+"\n", args...)
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	if !c.Verbose {
		return
	}
	fmt.Fprintf(c.Out, "[DEBUG] "+msg+"\n", args...)
}

// SilentLogger discards all log messages.
// Used when running in TUI or MCP mode so log output does not interfere with the display or the protocol.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}

// SlogLogger adapts the printf-style Logger interface onto log/slog. The
// formatted message becomes the record message; a leading "[Component]"
// prefix is lifted into a "component" attribute.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps an existing slog.Logger.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l}
}

// NewSlogLoggerFormat builds a SlogLogger writing to w. Format is "json" or
// "text"; anything else falls back to text.
func NewSlogLoggerFormat(w io.Writer, format string, verbose bool) *SlogLogger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return NewSlogLogger(slog.New(handler))
}

func (s *SlogLogger) Info(msg string, args ...interface{}) {
	s.log(slog.LevelInfo, msg, args...)
}

func (s *SlogLogger) Error(msg string, args ...interface{}) {
	s.log(slog.LevelError, msg, args...)
}

func (s *SlogLogger) Debug(msg string, args ...interface{}) {
	s.log(slog.LevelDebug, msg, args...)
}

func (s *SlogLogger) log(level slog.Level, msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	component, text := splitComponent(text)
	if component == "" {
		s.logger.Log(context.Background(), level, text)
		return
	}
	s.logger.Log(context.Background(), level, text, "component", component)
}

// splitComponent separates a "[Component] message" prefix.
func splitComponent(text string) (string, string) {
	if !strings.HasPrefix(text, "[") {
		return "", text
	}
	end := strings.Index(text, "]")
	if end < 0 {
		return "", text
	}
	return text[1:end], strings.TrimSpace(text[end+1:])
}

// New picks a Logger for the given format: "console", "text" or "json".
// Structured formats are written to stderr.
func New(format string, verbose bool) Logger {
	switch strings.ToLower(format) {
	case "", "console":
		l := NewConsoleLogger()
		l.Verbose = verbose
		return l
	default:
		return NewSlogLoggerFormat(os.Stderr, format, verbose)
	}
}
