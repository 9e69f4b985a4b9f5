package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"errors"
	stdlog "log"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, opts ...LoggerOption) Logger {
	opts = append([]LoggerOption{WithOutput(&ConsoleOutput{Writer: buf})}, opts...)
	return NewLogger(opts...)
}

func TestTextFormatterIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithFormatter(&TextFormatter{DisableTimestamp: true}))
	l.With(Component("store")).Info("appended", Str("stream", "s1"), Int("count", 2))

	got := buf.String()
	want := "INFO  appended component=store count=2 stream=s1\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestJSONFormatterRendersErrors(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithFormatter(&JSONFormatter{}))
	l.Error("save failed", Err(errors.New("disk full")))

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if m["error"] != "disk full" || m["level"] != "ERROR" || m["msg"] != "save failed" {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestLevelGatingSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithFormatter(&TextFormatter{DisableTimestamp: true}))
	child := l.WithComponent("child")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level: %q", buf.String())
	}
	l.SetLevel(DebugLevel)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("child did not observe parent level change: %q", buf.String())
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithFormatter(&TextFormatter{DisableTimestamp: true}), WithRedaction("token"))
	l.Info("login", Str("token", "secret"))
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("token leaked: %q", buf.String())
	}
}

func TestSampling(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithFormatter(&TextFormatter{DisableTimestamp: true}), WithSampling(1, 3))
	for i := 0; i < 7; i++ {
		l.Info("tick")
	}
	// first entry, then every third: indices 0, 1, 4
	if n := strings.Count(buf.String(), "tick"); n != 3 {
		t.Fatalf("want 3 sampled entries, got %d", n)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"INFO", InfoLevel, true},
		{"warning", WarnLevel, true},
		{"", InfoLevel, true},
		{"loud", InfoLevel, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if (err == nil) != tc.ok {
				t.Fatalf("err=%v ok=%v", err, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ApplyConfig(Config{Format: "json", Outputs: []OutputConfig{{Type: "null"}}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestRedirectStdLog(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithFormatter(&TextFormatter{DisableTimestamp: true}))
	restore := RedirectStdLog(l)
	stdlog.Print("from stdlib")
	restore()
	if !strings.Contains(buf.String(), "from stdlib") {
		t.Fatalf("stdlib output not captured: %q", buf.String())
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithFormatter(&TextFormatter{DisableTimestamp: true}))
	ctx := ContextWithFields(context.Background(), Str(RequestIDKey, "r1"))
	ctx = ContextWithFields(ctx, Str("op", "append"))
	l.WithContext(ctx).Info("handled")

	want := "INFO  handled op=append request_id=r1\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if l.WithContext(context.Background()) != l {
		t.Fatalf("empty context should return the same logger")
	}
}

func TestSlogGroupsFlatten(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithFormatter(&TextFormatter{DisableTimestamp: true}), WithRedaction("secret"))
	sl := l.(*BaseLogger).Slog().WithGroup("req").With("path", "/v1")
	sl.Info("served", slog.Group("auth", slog.String("secret", "x")), slog.Int("status", 200))

	got := buf.String()
	for _, want := range []string{"req.path=/v1", "req.status=200", "req.auth.secret=[REDACTED]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestCallerPointsAtCallSite(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithFormatter(&TextFormatter{DisableTimestamp: true, ShowCaller: true}))
	l.With(Component("x")).Warn("careful")
	if !strings.Contains(buf.String(), "caller=") || !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("caller not recorded: %q", buf.String())
	}
}
