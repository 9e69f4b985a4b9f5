package log

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level orders entries by severity. Entries below a logger's level are dropped.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < DebugLevel || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// Fields holds structured context keyed by field name.
type Fields map[string]interface{}

// Well-known field keys.
const (
	RequestIDKey = "request_id"
	ComponentKey = "component"
	OperationKey = "operation"
)

// Entry is one formatted log line before it reaches the outputs.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
	Error     error
}

// Logger is the structured logger handed to every ledger component.
// Children created with With* share their parent's level.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// The f variants take alternating key/value arguments.
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
	Fatalf(msg string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	With(fields ...Field) Logger
	// WithContext adds the fields attached to ctx by ContextWithFields.
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Formatter renders an entry to bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives every formatted entry.
type Output interface {
	Write(entry *Entry, formatted []byte) error
	Close() error
}

type LoggerOption func(*BaseLogger)

// BaseLogger is the Logger returned by NewLogger and ApplyConfig.
type BaseLogger struct {
	level  Level // initial level, copied into shared
	shared *levelState
	fields Fields

	formatter Formatter
	outputs   []Output
	redact    []string
	sample    *SamplingConfig

	slogLogger *slog.Logger
}

type ctxFieldsKey struct{}

// ContextWithFields returns a copy of ctx carrying fields for
// Logger.WithContext. Fields already on ctx are kept unless overridden.
func ContextWithFields(ctx context.Context, fields ...Field) context.Context {
	merged := make(Fields, len(fields))
	for k, v := range FieldsFromContext(ctx) {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	return context.WithValue(ctx, ctxFieldsKey{}, merged)
}

// FieldsFromContext returns the fields attached by ContextWithFields.
func FieldsFromContext(ctx context.Context) Fields {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(ctxFieldsKey{}).(Fields)
	return f
}

// NewLogger builds a logger at InfoLevel writing JSON unless options say otherwise.
func NewLogger(options ...LoggerOption) Logger {
	logger := &BaseLogger{level: InfoLevel, fields: Fields{}, formatter: &JSONFormatter{}}
	for _, opt := range options {
		opt(logger)
	}
	if len(logger.outputs) == 0 {
		logger.outputs = []Output{&ConsoleOutput{}}
	}

	logger.shared = &levelState{level: logger.level}
	logger.slogLogger = slog.New(logger.handler())
	return logger
}

type levelState struct {
	mu    sync.RWMutex
	level Level
}

func (l *BaseLogger) handler() slog.Handler {
	h := newBridgeHandler(l).withRedactions(l.redact)
	if l.sample != nil {
		h = h.withSampler(l.sample.Initial, l.sample.Thereafter)
	}
	if attrs := attrsFromMap(l.fields); len(attrs) > 0 {
		return h.WithAttrs(attrs)
	}
	return h
}

func WithLevel(level Level) LoggerOption { return func(l *BaseLogger) { l.level = level } }

func WithFormatter(f Formatter) LoggerOption { return func(l *BaseLogger) { l.formatter = f } }

// WithOutput adds an output; without any, entries go to stderr.
func WithOutput(o Output) LoggerOption {
	return func(l *BaseLogger) { l.outputs = append(l.outputs, o) }
}

// WithRedaction masks the values of the given keys, also inside groups.
func WithRedaction(keys ...string) LoggerOption {
	return func(l *BaseLogger) { l.redact = append(l.redact, keys...) }
}

// WithSampling passes the first initial entries of each message and every
// thereafter-th one after that.
func WithSampling(initial, thereafter int) LoggerOption {
	return func(l *BaseLogger) { l.sample = &SamplingConfig{Initial: initial, Thereafter: thereafter} }
}
