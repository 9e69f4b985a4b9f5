package log

import (
	"bytes"
	"fmt"
	stdlog "log"
)

type stdWriter struct {
	logger Logger
	level  Level
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := string(bytes.TrimRight(p, "\r\n"))
	switch w.level {
	case DebugLevel:
		w.logger.Debug(msg)
	case WarnLevel:
		w.logger.Warn(msg)
	case ErrorLevel, FatalLevel:
		w.logger.Error(msg)
	default:
		w.logger.Info(msg)
	}
	return len(p), nil
}

// ToStdLogger adapts l to a *log.Logger writing at level.
func ToStdLogger(l Logger, level Level) *stdlog.Logger {
	return stdlog.New(stdWriter{logger: l, level: level}, "", 0)
}

// RedirectStdLog routes the standard library's default logger through l and
// returns a function restoring the previous destination.
func RedirectStdLog(l Logger) func() {
	prevOut := stdlog.Writer()
	prevFlags := stdlog.Flags()
	prevPrefix := stdlog.Prefix()
	stdlog.SetOutput(stdWriter{logger: l, level: InfoLevel})
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	return func() {
		stdlog.SetOutput(prevOut)
		stdlog.SetFlags(prevFlags)
		stdlog.SetPrefix(prevPrefix)
	}
}

// PebbleLogger satisfies Pebble's Logger interface (Infof, Errorf, Fatalf).
type PebbleLogger struct {
	L Logger
}

// Infof implements pebble.Logger.
func (p PebbleLogger) Infof(format string, args ...interface{}) {
	p.L.Debug(fmt.Sprintf(format, args...))
}

// Errorf implements pebble.Logger.
func (p PebbleLogger) Errorf(format string, args ...interface{}) {
	p.L.Error(fmt.Sprintf(format, args...))
}

// Fatalf implements pebble.Logger.
func (p PebbleLogger) Fatalf(format string, args ...interface{}) {
	p.L.Fatal(fmt.Sprintf(format, args...))
}
