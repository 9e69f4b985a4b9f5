package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
	transports "github.com/remiverdiesen/agents-at-scale/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// APIURLFromEnv returns the HTTP base URL from LEDGER_URL or a default.
func APIURLFromEnv() string {
	if v := os.Getenv("LEDGER_URL"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

// grpcAddrFromEnv returns the gRPC server address from LEDGER_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("LEDGER_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:9090"
}

// addTransportFlags registers the flags read by getTransport.
func addTransportFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("transport", transports.KindHTTP, "Transport: http|ws|grpc")
	cmd.PersistentFlags().String("grpc-addr", "", "gRPC address (default $LEDGER_GRPC or 127.0.0.1:9090)")
}

func getTransport(cmd *cobra.Command, baseURL BaseURLFunc) (transports.Transport, error) {
	kind, _ := cmd.Flags().GetString("transport")
	addr, _ := cmd.Flags().GetString("grpc-addr")
	if addr == "" {
		addr = grpcAddrFromEnv()
	}
	return transports.New(kind, transports.Endpoints{BaseURL: baseURL(), GRPCAddr: addr})
}

// printedRecord is the JSON-lines shape written by list and tail.
type printedRecord struct {
	Timestamp string          `json:"timestamp"`
	Sequence  uint64          `json:"sequence"`
	SessionID string          `json:"session_id"`
	QueryID   string          `json:"query_id,omitempty"`
	ID        string          `json:"id"`
	Message   json.RawMessage `json:"message"`
}

// recordPrinter writes records as JSON lines or aligned text.
type recordPrinter struct {
	w    io.Writer
	text bool
	enc  *json.Encoder
}

func newRecordPrinter(w io.Writer, output string) (*recordPrinter, error) {
	switch output {
	case "", "json":
		return &recordPrinter{w: w, enc: json.NewEncoder(w)}, nil
	case "text":
		return &recordPrinter{w: w, text: true}, nil
	default:
		return nil, fmt.Errorf("invalid --output %q; use json|text", output)
	}
}

// print writes rec. displayTS, when set, replaces the stored timestamp.
func (p *recordPrinter) print(rec ledgerv1.Record, displayTS string) error {
	ts := displayTS
	if ts == "" {
		ts = rec.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if !p.text {
		return p.enc.Encode(printedRecord{
			Timestamp: ts,
			Sequence:  rec.Sequence,
			SessionID: rec.SessionID,
			QueryID:   rec.QueryID,
			ID:        rec.ID,
			Message:   rec.Message,
		})
	}
	msg := strings.TrimSpace(string(rec.Message))
	if len(msg) > 120 {
		msg = msg[:117] + "..."
	}
	_, err := fmt.Fprintf(p.w, "#%-6d %-16s %-14s %s\n", rec.Sequence, rec.SessionID, humanize.Time(rec.Timestamp), msg)
	return err
}
