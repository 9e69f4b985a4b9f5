package transports

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
	"github.com/remiverdiesen/agents-at-scale/pkg/livetail"
)

// GrpcTransport implements Transport over the ledger.v1.Ledger service.
type GrpcTransport struct {
	conn *grpc.ClientConn
	cli  ledgerv1.LedgerClient
}

// DialGRPC connects to addr with insecure transport for local/dev.
func DialGRPC(addr string, opts ...grpc.DialOption) (*GrpcTransport, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &GrpcTransport{conn: conn, cli: ledgerv1.NewLedgerClient(conn)}, nil
}

// Append sends a batch via gRPC.
func (t *GrpcTransport) Append(ctx context.Context, req ledgerv1.AppendRequest) ([]ledgerv1.Record, error) {
	resp, err := t.cli.Append(ctx, &req)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Page reads one page via ListSince.
func (t *GrpcTransport) Page(ctx context.Context, sessionID string, cursor *uint64, limit int) (ledgerv1.ListSinceResponse, error) {
	resp, err := t.cli.ListSince(ctx, &ledgerv1.ListSinceRequest{SessionID: sessionID, Cursor: cursor, Limit: limit})
	if err != nil {
		return ledgerv1.ListSinceResponse{}, err
	}
	return *resp, nil
}

// Clear deletes via gRPC.
func (t *GrpcTransport) Clear(ctx context.Context, req ledgerv1.ClearRequest) error {
	_, err := t.cli.Clear(ctx, &req)
	return err
}

// Live returns a gRPC live-tail transport on the same connection.
func (t *GrpcTransport) Live(filter string) livetail.Transport {
	lt := livetail.NewGRPCTransport(t.cli)
	lt.Filter = filter
	return lt
}

// Close closes the connection.
func (t *GrpcTransport) Close() error { return t.conn.Close() }
