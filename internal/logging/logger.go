// Package logging provides the printf-style logging contract shared by every
// component, plus a file-backed default implementation.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const logDirEnvVar = "TRAVEL_AGENT_LOG_DIR"

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

var (
	baseOnce sync.Once
	baseLog  *log.Logger
	baseLvl  Level
)

// fileLogger writes component-tagged lines through the shared base logger.
type fileLogger struct {
	component string
}

func base() *log.Logger {
	baseOnce.Do(func() {
		baseLvl = INFO
		if os.Getenv("TRAVEL_AGENT_DEBUG") != "" {
			baseLvl = DEBUG
		}

		var out io.Writer = os.Stderr
		if dir := os.Getenv(logDirEnvVar); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err == nil {
				path := filepath.Join(dir, "travel-agent.log")
				if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
					out = io.MultiWriter(os.Stderr, f)
				}
			}
		}
		baseLog = log.New(out, "", log.LstdFlags|log.Lmicroseconds)
	})
	return baseLog
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	base()
	return &fileLogger{component: component}
}

func (l *fileLogger) logf(level Level, format string, args ...any) {
	if level < baseLvl {
		return
	}
	base().Printf("[%s] [%s] %s", level, l.component, fmt.Sprintf(format, args...))
}

func (l *fileLogger) Debug(format string, args ...any) { l.logf(DEBUG, format, args...) }
func (l *fileLogger) Info(format string, args ...any)  { l.logf(INFO, format, args...) }
func (l *fileLogger) Warn(format string, args ...any)  { l.logf(WARN, format, args...) }
func (l *fileLogger) Error(format string, args ...any) { l.logf(ERROR, format, args...) }
