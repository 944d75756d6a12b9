// Package logging provides the leveled line logger shared by selfcal components.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level controls logging verbosity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel converts a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes "RFC3339 LEVEL component: message" lines.
// Child loggers created with Component share the writer and level.
type Logger struct {
	out       *log.Logger
	level     Level
	component string
	closer    io.Closer
	mu        *sync.Mutex
}

// New creates a Logger writing to w.
func New(w io.Writer, level string) *Logger {
	return &Logger{
		out:       log.New(w, "", 0),
		level:     ParseLevel(level),
		component: "selfcal",
		mu:        &sync.Mutex{},
	}
}

// NewFile creates a Logger that appends to path and mirrors warnings and
// errors to stderr.
func NewFile(path, level string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	l := New(io.MultiWriter(f, &stderrFilter{}), level)
	l.closer = f
	return l, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return New(io.Discard, "error")
}

// Component returns a child logger tagged with name.
func (l *Logger) Component(name string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.component = name
	child.closer = nil
	return &child
}

// Close releases the log file handle, if any.
func (l *Logger) Close() error {
	if l != nil && l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

func (l *Logger) logf(level Level, format string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Printf("%s %s %s: %s", time.Now().Format(time.RFC3339), level, l.component, msg)
}

// stderrFilter forwards only WARN and ERROR lines to stderr.
type stderrFilter struct{}

func (stderrFilter) Write(p []byte) (int, error) {
	s := string(p)
	if strings.Contains(s, " WARN ") || strings.Contains(s, " ERROR ") {
		if _, err := os.Stderr.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
