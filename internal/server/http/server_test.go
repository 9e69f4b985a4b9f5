package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	cfgpkg "github.com/remiverdiesen/agents-at-scale/internal/config"
	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
	"github.com/remiverdiesen/agents-at-scale/internal/runtime"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

func newServer(t *testing.T, mutate func(*cfgpkg.Config)) *Server {
	t.Helper()
	cfg := cfgpkg.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg, Logger: logpkg.NewNopLogger()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return New(rt, logpkg.NewNopLogger())
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type messagesBody struct {
	Messages []ledger.Record `json:"messages"`
}

type pageBody struct {
	Items      []ledger.Record `json:"items"`
	Total      int             `json:"total"`
	HasMore    bool            `json:"hasMore"`
	NextCursor *uint64         `json:"nextCursor"`
}

func TestHealthHandler(t *testing.T) {
	s := newServer(t, nil)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("cors header: %q", got)
	}
}

func TestRequestIDs(t *testing.T) {
	s := newServer(t, nil)
	first := do(t, s, http.MethodGet, "/v1/healthz", "").Header().Get("X-Request-ID")
	second := do(t, s, http.MethodGet, "/v1/healthz", "").Header().Get("X-Request-ID")
	if first == "" || first == second {
		t.Fatalf("request ids %q %q", first, second)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc" {
		t.Fatalf("caller request id not echoed: %q", got)
	}
}

func TestAppendListClear(t *testing.T) {
	s := newServer(t, nil)
	w := do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","query_id":"q1","messages":[{"role":"user"},{"role":"assistant"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("append status: %d %s", w.Code, w.Body.String())
	}
	created := decode[messagesBody](t, w)
	if len(created.Messages) != 2 || created.Messages[0].Sequence != 1 || created.Messages[1].Sequence != 2 {
		t.Fatalf("unexpected append response: %+v", created)
	}
	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","message":"plain"}`)

	listed := decode[messagesBody](t, do(t, s, http.MethodGet, "/v1/messages?session_id=s1", ""))
	if len(listed.Messages) != 3 {
		t.Fatalf("list: %d", len(listed.Messages))
	}
	byQuery := decode[messagesBody](t, do(t, s, http.MethodGet, "/v1/messages?session_id=s1&query_id=q1", ""))
	if len(byQuery.Messages) != 2 {
		t.Fatalf("list by query: %d", len(byQuery.Messages))
	}

	if w := do(t, s, http.MethodDelete, "/v1/messages?session_id=s1&query_id=q1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("clear status: %d", w.Code)
	}
	listed = decode[messagesBody](t, do(t, s, http.MethodGet, "/v1/messages?session_id=s1", ""))
	if len(listed.Messages) != 1 {
		t.Fatalf("after clear: %d", len(listed.Messages))
	}
	if w := do(t, s, http.MethodDelete, "/v1/messages?all=true", ""); w.Code != http.StatusNoContent {
		t.Fatalf("purge status: %d", w.Code)
	}
	stats := decode[ledger.Stats](t, do(t, s, http.MethodGet, "/v1/stats", ""))
	if stats.TotalRecords != 0 || stats.StreamCount != 0 {
		t.Fatalf("stats after purge: %+v", stats)
	}
}

func TestValidationErrors(t *testing.T) {
	s := newServer(t, func(c *cfgpkg.Config) { c.MaxMessageBytes = 16 })
	cases := []struct {
		name, method, target, body string
		want                       int
	}{
		{"missing session", http.MethodPost, "/v1/messages", `{"message":{"a":1}}`, http.StatusBadRequest},
		{"no payload", http.MethodPost, "/v1/messages", `{"session_id":"s1"}`, http.StatusBadRequest},
		{"oversize", http.MethodPost, "/v1/messages", `{"session_id":"s1","message":"` + strings.Repeat("x", 64) + `"}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/v1/messages", `{`, http.StatusBadRequest},
		{"list without key", http.MethodGet, "/v1/messages", "", http.StatusBadRequest},
		{"clear without key", http.MethodDelete, "/v1/messages", "", http.StatusBadRequest},
		{"bad cursor", http.MethodGet, "/v1/messages/stream?cursor=abc", "", http.StatusBadRequest},
		{"bad filter", http.MethodGet, "/v1/messages/stream?watch=true&filter=sequence%20%3E", "", http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/v1/messages", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, tc.method, tc.target, tc.body)
			if w.Code != tc.want {
				t.Fatalf("status %d want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
	if stats := decode[ledger.Stats](t, do(t, s, http.MethodGet, "/v1/stats", "")); stats.TotalRecords != 0 {
		t.Fatalf("rejected input mutated the store: %+v", stats)
	}
}

func TestStreamPagination(t *testing.T) {
	s := newServer(t, nil)
	for i := 0; i < 5; i++ {
		do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","message":{"n":1}}`)
	}
	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s2","message":{"n":2}}`)

	var seqs []uint64
	target := "/v1/messages/stream?session_id=s1&limit=2"
	for i := 0; i < 10; i++ {
		page := decode[pageBody](t, do(t, s, http.MethodGet, target, ""))
		if page.Total != 5 {
			t.Fatalf("total %d", page.Total)
		}
		for _, r := range page.Items {
			seqs = append(seqs, r.Sequence)
		}
		if !page.HasMore {
			if page.NextCursor != nil {
				t.Fatalf("last page carries a cursor")
			}
			break
		}
		target = "/v1/messages/stream?session_id=s1&limit=2&cursor=" + jsonNumber(*page.NextCursor)
	}
	if len(seqs) != 5 || seqs[0] != 1 || seqs[4] != 5 {
		t.Fatalf("pages did not cover the stream: %v", seqs)
	}
}

func jsonNumber(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestSessionsAndWait(t *testing.T) {
	s := newServer(t, nil)
	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"b","message":1}`)
	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"a","message":1}`)

	list := decode[struct {
		Sessions []string `json:"sessions"`
	}](t, do(t, s, http.MethodGet, "/v1/sessions", ""))
	if len(list.Sessions) != 2 || list.Sessions[0] != "a" {
		t.Fatalf("sessions: %v", list.Sessions)
	}

	type waitBody struct {
		Exists bool `json:"exists"`
	}
	if got := decode[waitBody](t, do(t, s, http.MethodGet, "/v1/sessions/wait?session_id=a", "")); !got.Exists {
		t.Fatalf("existing session reported missing")
	}
	start := time.Now()
	if got := decode[waitBody](t, do(t, s, http.MethodGet, "/v1/sessions/wait?session_id=zzz&timeout_ms=20", "")); got.Exists {
		t.Fatalf("missing session reported present")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("wait ignored timeout_ms")
	}
	start = time.Now()
	if got := decode[waitBody](t, do(t, s, http.MethodGet, "/v1/sessions/wait?session_id=zzz&timeout_ms=0", "")); got.Exists {
		t.Fatalf("missing session reported present")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout_ms=0 should answer right away")
	}
	if w := do(t, s, http.MethodGet, "/v1/sessions/wait", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestSnapshotAndMetrics(t *testing.T) {
	s := newServer(t, nil)
	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","message":1}`)
	if w := do(t, s, http.MethodPost, "/v1/snapshot", ""); w.Code != 200 {
		t.Fatalf("snapshot status %d", w.Code)
	}
	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != 200 || !strings.Contains(w.Body.String(), "ledger_appended_records_total 1") {
		t.Fatalf("metrics: %d %s", w.Code, w.Body.String())
	}
}

func readSSEData(t *testing.T, sc *bufio.Scanner) (string, string) {
	t.Helper()
	var id string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			return id, strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return "", ""
}

func TestSSEWatchReplaysAndStreams(t *testing.T) {
	s := newServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","message":{"n":1}}`)
	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","message":{"n":2}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/messages/stream?watch=true&session_id=s1&cursor=1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	sc := bufio.NewScanner(resp.Body)

	id, data := readSSEData(t, sc)
	var rec ledger.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != "2" || rec.Sequence != 2 {
		t.Fatalf("replay should start after cursor: id=%s rec=%+v", id, rec)
	}

	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","message":{"n":3}}`)
	id, _ = readSSEData(t, sc)
	if id != "3" {
		t.Fatalf("live record id %s", id)
	}
}

func TestWebSocketTail(t *testing.T) {
	s := newServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","message":{"role":"user"}}`)
	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","message":{"role":"tool"}}`)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + `/v1/messages/ws?session_id=s1&cursor=0&filter=json.role%20%3D%3D%20%22tool%22`
	wc, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer wc.Close()
	_ = wc.SetReadDeadline(time.Now().Add(5 * time.Second))

	var rec ledger.Record
	if err := wc.ReadJSON(&rec); err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Sequence != 2 {
		t.Fatalf("filter not applied: %+v", rec)
	}
	do(t, s, http.MethodPost, "/v1/messages", `{"session_id":"s1","message":{"role":"tool","n":3}}`)
	if err := wc.ReadJSON(&rec); err != nil {
		t.Fatalf("read live: %v", err)
	}
	if rec.Sequence != 3 {
		t.Fatalf("live record %+v", rec)
	}
}
