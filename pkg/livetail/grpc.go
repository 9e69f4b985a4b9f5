package livetail

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
)

// GRPCTransport uses the ledger.v1.Ledger service.
type GRPCTransport struct {
	Client ledgerv1.LedgerClient
	Filter string
}

// NewGRPCTransport wraps a Ledger client.
func NewGRPCTransport(client ledgerv1.LedgerClient) *GRPCTransport {
	return &GRPCTransport{Client: client}
}

// FetchPage implements Transport.
func (t *GRPCTransport) FetchPage(ctx context.Context, sessionID string, cursor *uint64, limit int) (Page, error) {
	resp, err := t.Client.ListSince(ctx, &ledgerv1.ListSinceRequest{SessionID: sessionID, Cursor: cursor, Limit: limit})
	if err != nil {
		return Page{}, fromStatus(err)
	}
	page := Page{Total: resp.Total, HasMore: resp.HasMore, NextCursor: resp.NextCursor}
	for _, rec := range resp.Items {
		page.Items = append(page.Items, itemFromRecord(rec))
	}
	return page, nil
}

// Watch implements Transport. The server sends headers before the first
// record, which marks the stream as open.
func (t *GRPCTransport) Watch(ctx context.Context, sessionID string, cursor *uint64, onOpen func(), onItem func(Item)) error {
	stream, err := t.Client.Tail(ctx, &ledgerv1.TailRequest{SessionID: sessionID, Cursor: cursor, Filter: t.Filter})
	if err != nil {
		return fromStatus(err)
	}
	if _, err := stream.Header(); err != nil {
		return fromStatus(err)
	}
	onOpen()
	for {
		rec, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fromStatus(err)
		}
		onItem(itemFromRecord(*rec))
	}
}

// Purge implements Transport.
func (t *GRPCTransport) Purge(ctx context.Context, sessionID string) error {
	_, err := t.Client.Clear(ctx, &ledgerv1.ClearRequest{SessionID: sessionID, All: sessionID == ""})
	return fromStatus(err)
}

// fromStatus keeps the server message of application errors and passes
// transport errors through.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.ResourceExhausted, codes.FailedPrecondition:
		return &RemoteError{Message: st.Message()}
	case codes.Canceled:
		return context.Canceled
	default:
		return err
	}
}
