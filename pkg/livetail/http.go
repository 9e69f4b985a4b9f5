package livetail

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// maxEventBytes bounds a single SSE line.
const maxEventBytes = 8 << 20

// HTTPTransport reads pages from /v1/messages/stream and tails it with
// Server-Sent Events.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
	// Filter is an optional CEL expression applied server-side to pushed
	// records.
	Filter string
	Logger logpkg.Logger
}

// NewHTTPTransport returns a transport for the server at baseURL. A nil
// client uses a client without a timeout, as push streams are long-lived.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		Logger:  logpkg.NewNopLogger(),
	}
}

type pageBody struct {
	Items      []json.RawMessage `json:"items"`
	Total      int               `json:"total"`
	HasMore    bool              `json:"hasMore"`
	NextCursor *uint64           `json:"nextCursor"`
}

// FetchPage implements Transport.
func (t *HTTPTransport) FetchPage(ctx context.Context, sessionID string, cursor *uint64, limit int) (Page, error) {
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != nil {
		q.Set("cursor", strconv.FormatUint(*cursor, 10))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/v1/messages/stream?"+q.Encode(), nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return Page{}, err
	}

	var body pageBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Page{}, fmt.Errorf("livetail: decode page: %w", err)
	}
	page := Page{Total: body.Total, HasMore: body.HasMore, NextCursor: body.NextCursor}
	for _, raw := range body.Items {
		it, err := decodeItem(raw)
		if err != nil {
			t.logger().Warn("dropping malformed record", logpkg.Err(err))
			continue
		}
		page.Items = append(page.Items, it)
	}
	return page, nil
}

// Watch implements Transport.
func (t *HTTPTransport) Watch(ctx context.Context, sessionID string, cursor *uint64, onOpen func(), onItem func(Item)) error {
	q := url.Values{"watch": {"true"}}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	if cursor != nil {
		q.Set("cursor", strconv.FormatUint(*cursor, 10))
	}
	if t.Filter != "" {
		q.Set("filter", t.Filter)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/v1/messages/stream?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	onOpen()

	err = readEvents(resp.Body, func(data []byte) error {
		it, err := decodeItem(data)
		if err != nil {
			var re *RemoteError
			if errors.As(err, &re) {
				return re
			}
			t.logger().Warn("dropping malformed event", logpkg.Err(err))
			return nil
		}
		onItem(it)
		return nil
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Purge implements Transport.
func (t *HTTPTransport) Purge(ctx context.Context, sessionID string) error {
	q := url.Values{}
	if sessionID == "" {
		q.Set("all", "true")
	} else {
		q.Set("session_id", sessionID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.BaseURL+"/v1/messages?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (t *HTTPTransport) logger() logpkg.Logger {
	if t.Logger == nil {
		return logpkg.NewNopLogger()
	}
	return t.Logger
}

// checkStatus turns a non-2xx response into an error carrying the server's
// message.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && len(body.Error) > 0 {
		return fmt.Errorf("livetail: %s: %w", resp.Status, remoteError(body.Error))
	}
	return fmt.Errorf("livetail: %s: %s", resp.Status, strings.TrimSpace(string(b)))
}

// readEvents parses a text/event-stream body and calls fn with the data of
// each event. Comments and fields other than data are ignored. It returns
// nil when the body ends cleanly.
func readEvents(r io.Reader, fn func(data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventBytes)
	var data bytes.Buffer
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			if data.Len() > 0 {
				if err := fn(data.Bytes()); err != nil {
					return err
				}
				data.Reset()
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		if string(field) == "data" {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(value)
		}
	}
	return sc.Err()
}
