package modbus

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel defines the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelNone // Disables logging
)

var levelNames = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelNone:    "NONE",
}

// SimpleLogger implements io.WriteCloser with level filtering. The level of
// each message is inferred from a "DEBUG:"/"INFO:"/"WARNING:"/"ERROR:"
// prefix; messages without a prefix default to info.
type SimpleLogger struct {
	mu     sync.Mutex
	level  LogLevel
	output io.WriteCloser
	prefix string
}

// NewSimpleLogger creates a SimpleLogger. A nil output defaults to stdout.
func NewSimpleLogger(output io.WriteCloser, level LogLevel, prefix string) *SimpleLogger {
	if output == nil {
		output = os.Stdout
	}
	return &SimpleLogger{level: level, output: output, prefix: prefix}
}

// SetLevel sets the logging level.
func (l *SimpleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetLevelFromString sets the logging level from its name (e.g. "DEBUG").
func (l *SimpleLogger) SetLevelFromString(name string) error {
	for level, levelName := range levelNames {
		if strings.EqualFold(name, levelName) {
			l.SetLevel(level)
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s", name)
}

// Write implements io.Writer, filtering messages below the configured
// level and stamping the rest with time, level and prefix.
func (l *SimpleLogger) Write(p []byte) (int, error) {
	message := string(p)
	level := determineLevel(message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level == LevelNone || level < l.level {
		return len(p), nil
	}
	line := fmt.Sprintf("%s [%s] <%s> %s\n",
		time.Now().Format(time.RFC3339), levelNames[level], l.prefix, strings.TrimSpace(message))
	return l.output.Write([]byte(line))
}

// Close closes the underlying output unless it is stdout.
func (l *SimpleLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.output != os.Stdout {
		return l.output.Close()
	}
	return nil
}

func determineLevel(message string) LogLevel {
	upper := strings.ToUpper(message)
	switch {
	case strings.HasPrefix(upper, "DEBUG:"):
		return LevelDebug
	case strings.HasPrefix(upper, "INFO:"):
		return LevelInfo
	case strings.HasPrefix(upper, "WARNING:"), strings.HasPrefix(upper, "WARN:"):
		return LevelWarning
	case strings.HasPrefix(upper, "ERROR:"):
		return LevelError
	}
	return LevelInfo
}
