package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// Logger writes leveled key/value lines:
//
//	2025-01-01T00:00:00Z [LEVEL] msg key=value ...
//
// A nil *Logger is valid and discards everything, so components can accept
// an optional logger without guarding every call.
type Logger struct {
	mu       sync.Mutex
	out      *stdlog.Logger
	minLevel Level
	fields   []any
}

// New returns a Logger writing to w at the given minimum level.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{
		out:      stdlog.New(w, "", 0),
		minLevel: level,
	}
}

// Discard returns a logger that drops all output.
func Discard() *Logger {
	return New(io.Discard, LevelError)
}

// ParseLevel maps a config value ("debug", "info", "error") to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(LevelInfo):
		return LevelInfo, nil
	case string(LevelDebug):
		return LevelDebug, nil
	case string(LevelError):
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("log: unknown level %q", s)
	}
}

// With returns a child logger that appends kv to every line.
func (l *Logger) With(kv ...any) *Logger {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &Logger{out: l.out, minLevel: l.minLevel, fields: fields}
}

func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.logWithLevel(LevelDebug, msg, kv...)
}

func (l *Logger) Info(msg string, kv ...any) {
	l.logWithLevel(LevelInfo, msg, kv...)
}

func (l *Logger) Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	l.logWithLevel(LevelError, msg, extended...)
}

func (l *Logger) logWithLevel(level Level, msg string, kv ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !enabled(l.minLevel, level) {
		return
	}

	ts := time.Now().Format(time.RFC3339Nano)
	line := ts + " [" + string(level) + "] " + msg

	if len(kv) > 0 || len(l.fields) > 0 {
		line += formatKVs(append(append([]any{}, kv...), l.fields...)...)
	}

	l.out.Println(line)
}

func enabled(minLevel, level Level) bool {
	switch minLevel {
	case LevelDebug:
		return true
	case LevelInfo:
		return level == LevelInfo || level == LevelError
	case LevelError:
		return level == LevelError
	default:
		return true
	}
}

func formatKVs(kv ...any) string {
	var b strings.Builder
	// Expect kv as pairs: key, value, key, value, ...
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(kv[i+1]))
	}
	// If odd number of args, last one is ignored.
	return b.String()
}

var (
	std     *Logger
	stdOnce sync.Once
)

// Default returns the process logger used by main. It writes to stderr.
func Default() *Logger {
	stdOnce.Do(func() {
		std = New(os.Stderr, LevelInfo)
	})
	return std
}

func SetLevel(l Level) { Default().SetLevel(l) }

func Debug(msg string, kv ...any) { Default().Debug(msg, kv...) }

func Info(msg string, kv ...any) { Default().Info(msg, kv...) }

func Error(msg string, err error, kv ...any) { Default().Error(msg, err, kv...) }
