package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/remiverdiesen/agents-at-scale/internal/config"
	"github.com/remiverdiesen/agents-at-scale/internal/runtime"
	grpcserver "github.com/remiverdiesen/agents-at-scale/internal/server/grpc"
	httpserver "github.com/remiverdiesen/agents-at-scale/internal/server/http"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

type testLedger struct {
	rt       *runtime.Runtime
	baseURL  string
	grpcAddr string
}

func startLedger(t *testing.T) *testLedger {
	t.Helper()
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfgpkg.Default(), Logger: logpkg.NewNopLogger()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	ts := httptest.NewServer(httpserver.New(rt, logpkg.NewNopLogger()).Handler())
	t.Cleanup(ts.Close)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gsrv := grpcserver.New(rt, logpkg.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = gsrv.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &testLedger{rt: rt, baseURL: ts.URL, grpcAddr: lis.Addr().String()}
}

func (l *testLedger) run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(func() string { return l.baseURL })
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func (l *testLedger) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := l.run(t, context.Background(), args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func decodeLines(t *testing.T, out string) []printedRecord {
	t.Helper()
	var recs []printedRecord
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var r printedRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		recs = append(recs, r)
	}
	return recs
}

func TestAppendListClear(t *testing.T) {
	for _, transport := range []string{"http", "grpc"} {
		t.Run(transport, func(t *testing.T) {
			l := startLedger(t)
			flags := []string{"--transport", transport, "--grpc-addr", l.grpcAddr}

			out := l.mustRun(t, append([]string{"session", "append", "-s", "s1", "-q", "q1", "--data", `{"role":"user"}`, "--data", "plain text"}, flags...)...)
			recs := decodeLines(t, out)
			if len(recs) != 2 || recs[0].Sequence != 1 || string(recs[1].Message) != `"plain text"` {
				t.Fatalf("append output %s", out)
			}
			l.mustRun(t, append([]string{"session", "append", "-s", "s2", "--data", `{"n":3}`}, flags...)...)

			out = l.mustRun(t, append([]string{"session", "list", "--limit", "1"}, flags...)...)
			if recs := decodeLines(t, out); len(recs) != 3 || recs[2].SessionID != "s2" {
				t.Fatalf("list output %s", out)
			}
			out = l.mustRun(t, append([]string{"session", "list", "-s", "s1", "--cursor", "1"}, flags...)...)
			if recs := decodeLines(t, out); len(recs) != 1 || recs[0].Sequence != 2 {
				t.Fatalf("list after cursor %s", out)
			}

			l.mustRun(t, append([]string{"session", "clear", "-s", "s1"}, flags...)...)
			if l.rt.Store().Exists("s1") || !l.rt.Store().Exists("s2") {
				t.Fatalf("clear removed the wrong sessions: %v", l.rt.Store().Streams())
			}
		})
	}
}

func TestListTextOutput(t *testing.T) {
	l := startLedger(t)
	l.mustRun(t, "session", "append", "-s", "s1", "--data", `{"role":"user"}`)
	out := l.mustRun(t, "session", "list", "-o", "text")
	if !strings.Contains(out, "#1") || !strings.Contains(out, "s1") {
		t.Fatalf("text output %q", out)
	}
}

func TestListByQuery(t *testing.T) {
	l := startLedger(t)
	l.mustRun(t, "session", "append", "-s", "s1", "-q", "q1", "--data", `{"n":1}`)
	l.mustRun(t, "session", "append", "-s", "s1", "-q", "q2", "--data", `{"n":2}`)
	out := l.mustRun(t, "session", "list", "-s", "s1", "-q", "q2")
	if recs := decodeLines(t, out); len(recs) != 1 || recs[0].QueryID != "q2" {
		t.Fatalf("list by query %s", out)
	}
}

func TestClearAllRequiresConfirm(t *testing.T) {
	l := startLedger(t)
	l.mustRun(t, "session", "append", "-s", "s1", "--data", `{}`)
	if _, err := l.run(t, context.Background(), "session", "clear", "--all"); err == nil {
		t.Fatalf("expected confirmation error")
	}
	l.mustRun(t, "session", "clear", "--all", "--confirm")
	if n := l.rt.Store().Stats().TotalRecords; n != 0 {
		t.Fatalf("records left: %d", n)
	}
}

func TestAppendRejectsServerValidation(t *testing.T) {
	l := startLedger(t)
	_, err := l.run(t, context.Background(), "session", "append", "--data", `{}`)
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTailPrintsBackfillThenLive(t *testing.T) {
	for _, transport := range []string{"http", "ws", "grpc"} {
		t.Run(transport, func(t *testing.T) {
			l := startLedger(t)
			for i := 0; i < 2; i++ {
				if _, err := l.rt.Store().Append(context.Background(), "s1", json.RawMessage(`{"role":"user"}`)); err != nil {
					t.Fatalf("append: %v", err)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			type result struct {
				out string
				err error
			}
			done := make(chan result, 1)
			go func() {
				out, err := l.run(t, ctx, "session", "tail", "-s", "s1", "--count", "3",
					"--transport", transport, "--grpc-addr", l.grpcAddr)
				done <- result{out, err}
			}()

			// keep appending until the tail has seen a live record
			tick := time.NewTicker(50 * time.Millisecond)
			defer tick.Stop()
			appended := false
			for {
				select {
				case res := <-done:
					if res.err != nil {
						t.Fatalf("tail: %v", res.err)
					}
					recs := decodeLines(t, res.out)
					if len(recs) != 3 {
						t.Fatalf("tail output %s", res.out)
					}
					for i, r := range recs {
						if r.Sequence != uint64(i+1) || r.Timestamp == "" {
							t.Fatalf("record %d: %+v", i, r)
						}
					}
					return
				case <-tick.C:
					if !appended {
						if _, err := l.rt.Store().Append(context.Background(), "s1", json.RawMessage(`{"role":"tool"}`)); err != nil {
							t.Fatalf("append: %v", err)
						}
						appended = true
					}
				case <-ctx.Done():
					t.Fatalf("tail did not finish")
				}
			}
		})
	}
}

func TestStatsWaitAndLs(t *testing.T) {
	l := startLedger(t)
	for i := 0; i < 3; i++ {
		l.mustRun(t, "session", "append", "-s", "s1", "--data", `{}`)
	}
	if out := l.mustRun(t, "stats"); out != "sessions: 1\nmessages: 3\n" {
		t.Fatalf("stats %q", out)
	}
	if out := l.mustRun(t, "stats", "-o", "json"); !strings.Contains(out, `"totalMessages": 3`) {
		t.Fatalf("stats json %q", out)
	}
	if out := l.mustRun(t, "session", "ls"); out != "s1\n" {
		t.Fatalf("ls %q", out)
	}
	l.mustRun(t, "session", "wait", "-s", "s1", "--timeout", "1s")
	if _, err := l.run(t, context.Background(), "session", "wait", "-s", "missing", "--timeout", "50ms"); err == nil {
		t.Fatalf("expected wait timeout")
	}
}

func TestReadMessages(t *testing.T) {
	msgs, err := readMessages(strings.NewReader(`[{"a":1},"b"]`), "-")
	if err != nil || len(msgs) != 2 || string(msgs[1]) != `"b"` {
		t.Fatalf("array: %v %v", msgs, err)
	}
	msgs, err = readMessages(strings.NewReader(`{"a":1}`), "-")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("object: %v %v", msgs, err)
	}
	if _, err := readMessages(strings.NewReader(`nope`), "-"); err == nil {
		t.Fatalf("expected invalid JSON error")
	}
	if got := string(asJSON("hi")); got != `"hi"` {
		t.Fatalf("asJSON %s", got)
	}
}
