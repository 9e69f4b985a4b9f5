package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
	sessionsvc "github.com/remiverdiesen/agents-at-scale/internal/services/sessions"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

type ledgerSvc struct {
	svc    *sessionsvc.Service
	logger logpkg.Logger
}

func (s *ledgerSvc) Append(ctx context.Context, req *ledgerv1.AppendRequest) (*ledgerv1.AppendResponse, error) {
	recs, err := s.svc.Append(ctx, sessionsvc.AppendRequest{
		StreamKey:     req.SessionID,
		CorrelationID: req.QueryID,
		Messages:      req.Messages,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &ledgerv1.AppendResponse{Messages: toWireSlice(recs)}, nil
}

func (s *ledgerSvc) ListSince(ctx context.Context, req *ledgerv1.ListSinceRequest) (*ledgerv1.ListSinceResponse, error) {
	page := s.svc.Page(req.SessionID, fromWireCursor(req.Cursor), req.Limit)
	out := &ledgerv1.ListSinceResponse{Items: toWireSlice(page.Records), Total: page.Total, HasMore: page.HasMore}
	if page.NextCursor != nil {
		c := uint64(*page.NextCursor)
		out.NextCursor = &c
	}
	return out, nil
}

func (s *ledgerSvc) Clear(ctx context.Context, req *ledgerv1.ClearRequest) (*ledgerv1.ClearResponse, error) {
	err := s.svc.Clear(ctx, sessionsvc.ClearRequest{StreamKey: req.SessionID, CorrelationID: req.QueryID, All: req.All})
	if err != nil {
		return nil, toStatus(err)
	}
	return &ledgerv1.ClearResponse{}, nil
}

type grpcSink struct {
	stream ledgerv1.Ledger_TailServer
}

func (g grpcSink) Send(r ledger.Record) error {
	w := toWire(r)
	return g.stream.Send(&w)
}
func (g grpcSink) Context() context.Context { return g.stream.Context() }
func (g grpcSink) Flush() error             { return nil }

func (s *ledgerSvc) Tail(req *ledgerv1.TailRequest, stream ledgerv1.Ledger_TailServer) error {
	if err := sessionsvc.ValidateFilter(req.Filter); err != nil {
		return toStatus(err)
	}
	// Headers tell the client the tail is open before the first record.
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}
	err := s.svc.Tail(stream.Context(), sessionsvc.TailRequest{
		StreamKey: req.SessionID,
		Cursor:    fromWireCursor(req.Cursor),
		Filter:    req.Filter,
		Transport: "grpc",
	}, grpcSink{stream: stream})
	if err != nil && stream.Context().Err() == nil {
		s.logger.Warn("grpc tail ended", logpkg.Str("session_id", req.SessionID), logpkg.Err(err))
	}
	return toStatus(err)
}

// toStatus maps store errors to gRPC codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case ledger.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ledger.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, sessionsvc.ErrSlowConsumer):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func fromWireCursor(c *uint64) *ledger.Cursor {
	if c == nil {
		return nil
	}
	return ledger.Cursor(*c).Ptr()
}

func toWire(r ledger.Record) ledgerv1.Record {
	return ledgerv1.Record{
		ID:        r.ID,
		SessionID: r.StreamKey,
		QueryID:   r.CorrelationID,
		Sequence:  r.Sequence,
		Timestamp: r.Timestamp,
		Message:   r.Payload,
	}
}

func toWireSlice(recs []ledger.Record) []ledgerv1.Record {
	out := make([]ledgerv1.Record, len(recs))
	for i, r := range recs {
		out[i] = toWire(r)
	}
	return out
}
