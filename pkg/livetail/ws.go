package livetail

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

const wsHandshakeTimeout = 10 * time.Second

// WSTransport pages over HTTP and tails /v1/messages/ws.
type WSTransport struct {
	*HTTPTransport
	Dialer *websocket.Dialer
}

// NewWSTransport returns a WebSocket transport for the server at baseURL
// (http or https; the ws scheme is derived).
func NewWSTransport(baseURL string, client *http.Client) *WSTransport {
	return &WSTransport{
		HTTPTransport: NewHTTPTransport(baseURL, client),
		Dialer:        &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout, Proxy: http.ProxyFromEnvironment},
	}
}

// Watch implements Transport.
func (t *WSTransport) Watch(ctx context.Context, sessionID string, cursor *uint64, onOpen func(), onItem func(Item)) error {
	u, err := wsURL(t.BaseURL)
	if err != nil {
		return err
	}
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	if cursor != nil {
		q.Set("cursor", strconv.FormatUint(*cursor, 10))
	}
	if t.Filter != "" {
		q.Set("filter", t.Filter)
	}
	u.RawQuery = q.Encode()

	wc, resp, err := t.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if serr := checkStatus(resp); serr != nil {
				return serr
			}
		}
		return err
	}
	defer wc.Close()
	stop := context.AfterFunc(ctx, func() { _ = wc.Close() })
	defer stop()
	onOpen()

	for {
		op, data, err := wc.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if op != websocket.TextMessage {
			continue
		}
		it, err := decodeItem(data)
		if err != nil {
			var re *RemoteError
			if errors.As(err, &re) {
				return re
			}
			t.logger().Warn("dropping malformed message", logpkg.Err(err))
			continue
		}
		onItem(it)
	}
}

func wsURL(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/messages/ws"
	return u, nil
}
