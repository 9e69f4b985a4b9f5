package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
	"github.com/remiverdiesen/agents-at-scale/pkg/livetail"
)

// HTTPTransport implements Transport over the HTTP API. Live tails use
// Server-Sent Events, or a WebSocket when ws is set.
type HTTPTransport struct {
	base   string
	client *http.Client
	ws     bool
}

// NewHTTPTransport constructs a new HTTPTransport for baseURL.
func NewHTTPTransport(baseURL string, ws bool) *HTTPTransport {
	return &HTTPTransport{base: strings.TrimRight(baseURL, "/"), client: &http.Client{}, ws: ws}
}

// Append posts a batch to /v1/messages.
func (t *HTTPTransport) Append(ctx context.Context, req ledgerv1.AppendRequest) ([]ledgerv1.Record, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out ledgerv1.AppendResponse
	if err := t.do(ctx, http.MethodPost, "/v1/messages", nil, b, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Page reads one page from /v1/messages/stream.
func (t *HTTPTransport) Page(ctx context.Context, sessionID string, cursor *uint64, limit int) (ledgerv1.ListSinceResponse, error) {
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	if cursor != nil {
		q.Set("cursor", strconv.FormatUint(*cursor, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out ledgerv1.ListSinceResponse
	err := t.do(ctx, http.MethodGet, "/v1/messages/stream", q, nil, &out)
	return out, err
}

// Clear deletes via DELETE /v1/messages.
func (t *HTTPTransport) Clear(ctx context.Context, req ledgerv1.ClearRequest) error {
	q := url.Values{}
	if req.SessionID != "" {
		q.Set("session_id", req.SessionID)
	}
	if req.QueryID != "" {
		q.Set("query_id", req.QueryID)
	}
	if req.All {
		q.Set("all", "true")
	}
	return t.do(ctx, http.MethodDelete, "/v1/messages", q, nil, nil)
}

// Live returns an SSE or WebSocket live-tail transport.
func (t *HTTPTransport) Live(filter string) livetail.Transport {
	if t.ws {
		lt := livetail.NewWSTransport(t.base, t.client)
		lt.Filter = filter
		return lt
	}
	lt := livetail.NewHTTPTransport(t.base, t.client)
	lt.Filter = filter
	return lt
}

// Close is a no-op.
func (t *HTTPTransport) Close() error { return nil }

// Get decodes GET path into out. It serves the HTTP-only endpoints.
func (t *HTTPTransport) Get(ctx context.Context, path string, q url.Values, out any) error {
	return t.do(ctx, http.MethodGet, path, q, nil, out)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, q url.Values, body []byte, out any) error {
	u := t.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return httpError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func httpError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return fmt.Errorf("http error: %s: %s", resp.Status, body.Error)
	}
	return fmt.Errorf("http error: %s", resp.Status)
}
