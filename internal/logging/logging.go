// Package logging provides the leveled logger used across chfile.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case name used in text output.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", s)
}

type logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	json   bool
	simple bool
}

var std = &logger{out: os.Stdout, level: LevelInfo}

// SetOutput redirects log output. nil restores stdout.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	std.out = w
}

// SetLevel sets the minimum level that is written.
func SetLevel(l Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.level = l
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.level
}

// SetFormat selects "json" or "text" output. Anything else means text.
func SetFormat(format string) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.json = strings.EqualFold(format, "json")
}

// SetSimpleMode drops timestamps from text output. Used while the TUI
// captures log lines into its viewport.
func SetSimpleMode(simple bool) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.simple = simple
}

func (l *logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	if l.json {
		entry := map[string]string{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": strings.ToLower(level.String()),
			"msg":   msg,
		}
		b, err := json.Marshal(entry)
		if err != nil {
			return
		}
		l.out.Write(append(b, '\n'))
		return
	}

	if l.simple {
		fmt.Fprintf(l.out, "[%s] %s\n", level, msg)
		return
	}
	fmt.Fprintf(l.out, "%s [%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), level, msg)
}

// Debug logs at debug level.
func Debug(format string, args ...interface{}) { std.log(LevelDebug, format, args...) }

// Info logs at info level.
func Info(format string, args ...interface{}) { std.log(LevelInfo, format, args...) }

// Warn logs at warn level.
func Warn(format string, args ...interface{}) { std.log(LevelWarn, format, args...) }

// Error logs at error level.
func Error(format string, args ...interface{}) { std.log(LevelError, format, args...) }
