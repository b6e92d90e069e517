// Package logging writes JSON structured logs for the director service.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"capturerig/director/internal/config"
)

var (
	globalMu     sync.RWMutex
	globalLogger = newNopLogger()
)

// Level orders log verbosity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error", "fatal"}

func (l Level) String() string {
	if l < DebugLevel || l > FatalLevel {
		return "info"
	}
	return levelNames[l]
}

// MarshalText renders the level the way it appears in log lines.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// ParseLevel accepts the level names plus "warning" and the empty string.
func ParseLevel(raw string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return InfoLevel, nil
	case "warning":
		return WarnLevel, nil
	}
	for i, candidate := range levelNames {
		if candidate == name {
			return Level(i), nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", raw)
}

// Field is one structured attribute of a log line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 is used for tick and frame counters.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration renders value as a Go duration string such as "1.5s".
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Vector renders a world position as an [x, y, z] array.
func Vector(key string, value r3.Vector) Field {
	return Field{Key: key, Value: [3]float64{value.X, value.Y, value.Z}}
}

// Error stores err under the "error" key; a nil error logs null.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger writes one JSON object per line. The envelope keys come first, then
// the logger's bound fields in the order they were added, then call fields.
type Logger struct {
	mu     *sync.Mutex
	level  Level
	writer syncWriter
	fields []Field
	now    func() time.Time
}

// syncWriter is a writer that can flush to durable storage.
type syncWriter interface {
	io.Writer
	Sync() error
}

// fanout mirrors every line to all writers and reports the first failure.
type fanout []syncWriter

func (f fanout) Write(p []byte) (int, error) {
	var errs []error
	for _, w := range f {
		if _, err := w.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return len(p), nil
}

func (f fanout) Sync() error {
	var errs []error
	for _, w := range f {
		if err := w.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New opens the rotating log file described by cfg, mirrors it to stdout and
// installs the result as the global logger.
func New(cfg config.LoggingConfig) (*Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("logging path must be specified")
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	file, err := openRotatingFile(cfg)
	if err != nil {
		return nil, err
	}
	out := fanout{file}
	if os.Stdout != nil {
		out = append(out, os.Stdout)
	}
	logger := newLogger(level, out).With(String("service", "director"))
	ReplaceGlobals(logger)
	return logger, nil
}

func newLogger(level Level, writer syncWriter) *Logger {
	return &Logger{
		mu:     &sync.Mutex{},
		level:  level,
		writer: writer,
		now:    time.Now,
	}
}

// NewTestLogger returns a logger that discards output.
func NewTestLogger() *Logger {
	return newNopLogger()
}

func newNopLogger() *Logger {
	return newLogger(DebugLevel, discardSyncWriter{})
}

// ReplaceGlobals swaps the fallback logger used when no context logger is present.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the current global logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With returns a child logger that adds fields to every line. A key already
// bound on the parent is replaced in place. Children share the parent's writer
// and lock.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return L().With(fields...)
	}
	child := *l
	child.fields = make([]Field, len(l.fields), len(l.fields)+len(fields))
	copy(child.fields, l.fields)
	for _, field := range fields {
		replaced := false
		for i := range child.fields {
			if child.fields[i].Key == field.Key {
				child.fields[i] = field
				replaced = true
				break
			}
		}
		if !replaced {
			child.fields = append(child.fields, field)
		}
	}
	return &child
}

// Enabled reports whether a line at level would be written.
func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return L().Enabled(level)
	}
	return level >= l.level
}

// Sync flushes buffered output to durable storage.
func (l *Logger) Sync() error {
	if l == nil || l.writer == nil {
		return nil
	}
	return l.writer.Sync()
}

func (l *Logger) Debug(message string, fields ...Field) { l.log(DebugLevel, message, fields) }

func (l *Logger) Info(message string, fields ...Field) { l.log(InfoLevel, message, fields) }

func (l *Logger) Warn(message string, fields ...Field) { l.log(WarnLevel, message, fields) }

func (l *Logger) Error(message string, fields ...Field) { l.log(ErrorLevel, message, fields) }

// Fatal logs, flushes and exits the process with status 1.
func (l *Logger) Fatal(message string, fields ...Field) { l.log(FatalLevel, message, fields) }

func (l *Logger) log(level Level, message string, fields []Field) {
	if l == nil {
		L().log(level, message, fields)
		return
	}
	if level < l.level {
		return
	}
	line, err := l.encode(level, message, fields)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.writer.Write(line)
	if level == FatalLevel {
		_ = l.writer.Sync()
		os.Exit(1)
	}
}

func (l *Logger) encode(level Level, message string, fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	//1.- Fixed envelope first so lines stay greppable by prefix.
	writePair(&buf, "timestamp", l.now().UTC().Format(time.RFC3339Nano), true)
	writePair(&buf, "level", level.String(), false)
	writePair(&buf, "message", message, false)
	//2.- Bound fields then call fields; unencodable values degrade to their %v text.
	for _, group := range [][]Field{l.fields, fields} {
		for _, field := range group {
			value, err := json.Marshal(field.Value)
			if err != nil {
				value, _ = json.Marshal(fmt.Sprintf("%v", field.Value))
			}
			key, err := json.Marshal(field.Key)
			if err != nil {
				return nil, err
			}
			buf.WriteByte(',')
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func writePair(buf *bytes.Buffer, key, value string, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)
	v, _ := json.Marshal(value)
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
}

type discardSyncWriter struct{}

func (discardSyncWriter) Write(p []byte) (int, error) { return len(p), nil }

func (discardSyncWriter) Sync() error { return nil }
