// Package logger provides a thread-safe in-memory logger for recent node
// activity and the process-wide go-kit logger that feeds it.
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-logfmt/logfmt"
)

// Message represents a single log message
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Level     string    `json:"level"` // debug, info, warn, error
}

// Logger keeps the last maxSize records. It is itself a go-kit log.Logger so
// it can sit behind log.NewTeeLogger-style fan out.
type Logger struct {
	mu       sync.RWMutex
	messages []Message
	maxSize  int
}

var _ log.Logger = (*Logger)(nil)

// New creates a new logger with specified max message count
func New(maxSize int) *Logger {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Logger{
		messages: make([]Message, 0, maxSize),
		maxSize:  maxSize,
	}
}

// Log records keyvals. The level and ts keys become Message fields and the
// rest is rendered as logfmt.
func (l *Logger) Log(keyvals ...interface{}) error {
	lvl := "info"
	ts := time.Now()
	rest := make([]interface{}, 0, len(keyvals))

	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		var val interface{} = log.ErrMissingValue
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		switch key {
		case "level":
			lvl = fmt.Sprint(val)
		case "ts":
			if t, ok := val.(time.Time); ok {
				ts = t
			}
		default:
			rest = append(rest, keyvals[i], val)
		}
	}

	text, err := logfmt.MarshalKeyvals(rest...)
	if err != nil {
		text = []byte(fmt.Sprint(rest...))
	}
	l.append(Message{Timestamp: ts, Text: string(text), Level: lvl})
	return nil
}

func (l *Logger) append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)

	// Keep only the last maxSize messages
	if len(l.messages) > l.maxSize {
		l.messages = l.messages[len(l.messages)-l.maxSize:]
	}
}

// Info logs an info-level message
func (l *Logger) Info(text string) {
	l.append(Message{Timestamp: time.Now(), Text: text, Level: "info"})
}

// Warning logs a warning-level message
func (l *Logger) Warning(text string) {
	l.append(Message{Timestamp: time.Now(), Text: text, Level: "warn"})
}

// Error logs an error-level message
func (l *Logger) Error(text string) {
	l.append(Message{Timestamp: time.Now(), Text: text, Level: "error"})
}

// GetRecent returns the most recent n messages (newest first)
func (l *Logger) GetRecent(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.messages) || n < 0 {
		n = len(l.messages)
	}

	result := make([]Message, n)
	for i := 0; i < n; i++ {
		result[i] = l.messages[len(l.messages)-1-i]
	}

	return result
}

// GetAll returns all messages (newest first)
func (l *Logger) GetAll() []Message {
	return l.GetRecent(-1)
}

// NewProcessLogger returns the node logger: logfmt lines on w, mirrored into
// ring when it is non-nil, filtered at minLevel (debug, info, warn, error).
func NewProcessLogger(w io.Writer, ring *Logger, minLevel string) log.Logger {
	var out log.Logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	if ring != nil {
		out = tee{out, ring}
	}
	out = level.NewFilter(out, levelOption(minLevel))
	return log.With(out, "ts", log.DefaultTimestampUTC)
}

func levelOption(name string) level.Option {
	switch strings.ToLower(name) {
	case "debug":
		return level.AllowDebug()
	case "warn", "warning":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	case "none":
		return level.AllowNone()
	}
	return level.AllowInfo()
}

type tee []log.Logger

func (t tee) Log(keyvals ...interface{}) error {
	var first error
	for _, l := range t {
		if err := l.Log(keyvals...); err != nil && first == nil {
			first = err
		}
	}
	return first
}
