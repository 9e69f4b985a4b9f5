package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

func (l *BaseLogger) emit(level Level, msg string, attrs []slog.Attr) {
	if level < l.GetLevel() {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip Callers, emit and the level method
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.slogLogger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.emit(DebugLevel, msg, attrsFromFieldSlice(fields))
}

// Info logs at info level.
func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.emit(InfoLevel, msg, attrsFromFieldSlice(fields))
}

// Warn logs at warn level.
func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.emit(WarnLevel, msg, attrsFromFieldSlice(fields))
}

// Error logs at error level.
func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.emit(ErrorLevel, msg, attrsFromFieldSlice(fields))
}

// Fatal logs at error level and exits the process.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.emit(FatalLevel, msg, attrsFromFieldSlice(fields))
	l.closeOutputs()
	os.Exit(1)
}

// Debugf logs with key-value pairs at debug level.
func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.emit(DebugLevel, msg, argsToAttrs(args))
}

// Infof logs with key-value pairs at info level.
func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.emit(InfoLevel, msg, argsToAttrs(args))
}

// Warnf logs with key-value pairs at warn level.
func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.emit(WarnLevel, msg, argsToAttrs(args))
}

// Errorf logs with key-value pairs at error level.
func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.emit(ErrorLevel, msg, argsToAttrs(args))
}

// Fatalf logs with key-value pairs and exits the process.
func (l *BaseLogger) Fatalf(msg string, args ...interface{}) {
	l.emit(FatalLevel, msg, argsToAttrs(args))
	l.closeOutputs()
	os.Exit(1)
}

// WithField returns a child logger with one extra field.
func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(Fields{key: value})
}

// WithFields returns a child logger carrying the given fields.
func (l *BaseLogger) WithFields(fields Fields) Logger {
	child := l.clone()
	for k, v := range fields {
		child.fields[k] = v
	}
	child.slogLogger = slog.New(child.handler())
	return child
}

// WithError returns a child logger carrying err under the "error" key.
func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithFields(Fields{"error": err})
}

// With returns a child logger carrying the given fields.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	m := make(Fields, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return l.WithFields(m)
}

// WithContext returns a child logger carrying the fields attached to ctx.
func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}

// WithComponent tags logs with a component name.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.WithFields(Fields{ComponentKey: component})
}

// SetLevel sets the minimum level. Children share the level with their parent.
func (l *BaseLogger) SetLevel(level Level) {
	l.shared.mu.Lock()
	l.shared.level = level
	l.shared.mu.Unlock()
}

// GetLevel returns the minimum level.
func (l *BaseLogger) GetLevel() Level {
	l.shared.mu.RLock()
	defer l.shared.mu.RUnlock()
	return l.shared.level
}

// Slog exposes the underlying slog.Logger.
func (l *BaseLogger) Slog() *slog.Logger { return l.slogLogger }

// Close closes every output.
func (l *BaseLogger) Close() error {
	return l.closeOutputs()
}

func (l *BaseLogger) clone() *BaseLogger {
	fields := make(Fields, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &BaseLogger{
		level:     l.level,
		shared:    l.shared,
		fields:    fields,
		formatter: l.formatter,
		outputs:   l.outputs,
		redact:    l.redact,
		sample:    l.sample,
	}
}

func (l *BaseLogger) closeOutputs() error {
	var first error
	for _, out := range l.outputs {
		if err := out.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
