// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"
	"fmt"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
	"github.com/remiverdiesen/agents-at-scale/pkg/livetail"
)

// Kinds accepted by New.
const (
	KindHTTP = "http"
	KindWS   = "ws"
	KindGRPC = "grpc"
)

// Transport abstracts the ledger API used by the CLI (HTTP/gRPC).
type Transport interface {
	Append(ctx context.Context, req ledgerv1.AppendRequest) ([]ledgerv1.Record, error)
	Page(ctx context.Context, sessionID string, cursor *uint64, limit int) (ledgerv1.ListSinceResponse, error)
	Clear(ctx context.Context, req ledgerv1.ClearRequest) error
	// Live returns a live-tail transport sharing this transport's endpoint.
	Live(filter string) livetail.Transport
	Close() error
}

// Endpoints locates the server.
type Endpoints struct {
	BaseURL  string
	GRPCAddr string
}

// New returns the transport for kind.
func New(kind string, ep Endpoints) (Transport, error) {
	switch kind {
	case "", KindHTTP:
		return NewHTTPTransport(ep.BaseURL, false), nil
	case KindWS:
		return NewHTTPTransport(ep.BaseURL, true), nil
	case KindGRPC:
		return DialGRPC(ep.GRPCAddr)
	default:
		return nil, fmt.Errorf("unknown transport %q; use http|ws|grpc", kind)
	}
}
