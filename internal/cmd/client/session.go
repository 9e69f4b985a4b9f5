package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
	transports "github.com/remiverdiesen/agents-at-scale/internal/cmd/client/transports"
	"github.com/remiverdiesen/agents-at-scale/pkg/livetail"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// NewSessionCommand constructs the `session` command group and subcommands.
func NewSessionCommand(baseURL BaseURLFunc) *cobra.Command {
	sessionCmd := &cobra.Command{Use: "session", Short: "Session message operations"}
	addTransportFlags(sessionCmd)

	sessionCmd.AddCommand(
		newSessionAppendCommand(baseURL),
		newSessionListCommand(baseURL),
		newSessionClearCommand(baseURL),
		newSessionTailCommand(baseURL),
		newSessionWaitCommand(baseURL),
		newSessionLsCommand(baseURL),
	)
	return sessionCmd
}

// newSessionAppendCommand constructs the `session append` subcommand.
func newSessionAppendCommand(baseURL BaseURLFunc) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append one or more messages to a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			query, _ := cmd.Flags().GetString("query")
			data, _ := cmd.Flags().GetStringArray("data")
			file, _ := cmd.Flags().GetString("file")
			output, _ := cmd.Flags().GetString("output")

			msgs := make([]json.RawMessage, 0, len(data))
			for _, d := range data {
				msgs = append(msgs, asJSON(d))
			}
			if file != "" {
				fromFile, err := readMessages(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				msgs = append(msgs, fromFile...)
			}
			if len(msgs) == 0 {
				return fmt.Errorf("nothing to append; use --data or --file")
			}
			p, err := newRecordPrinter(cmd.OutOrStdout(), output)
			if err != nil {
				return err
			}

			t, err := getTransport(cmd, baseURL)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()
			recs, err := t.Append(cmd.Context(), ledgerv1.AppendRequest{SessionID: session, QueryID: query, Messages: msgs})
			if err != nil {
				return err
			}
			for _, r := range recs {
				if err := p.print(r, ""); err != nil {
					return err
				}
			}
			return nil
		},
	}
	appendCmd.Flags().StringP("session", "s", "", "Session id")
	appendCmd.Flags().StringP("query", "q", "", "Query id")
	appendCmd.Flags().StringArray("data", nil, "Message JSON (repeatable); non-JSON text is sent as a string")
	appendCmd.Flags().String("file", "", "Read messages from a JSON file (- for stdin); an array appends each element")
	appendCmd.Flags().StringP("output", "o", "json", "Output: json|text")
	return appendCmd
}

// newSessionListCommand constructs the `session list` subcommand.
func newSessionListCommand(baseURL BaseURLFunc) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Page through stored messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			query, _ := cmd.Flags().GetString("query")
			limit, _ := cmd.Flags().GetInt("limit")
			maxItems, _ := cmd.Flags().GetInt("max")
			output, _ := cmd.Flags().GetString("output")

			var cursor *uint64
			if cmd.Flags().Changed("cursor") {
				c, _ := cmd.Flags().GetUint64("cursor")
				cursor = &c
			}
			p, err := newRecordPrinter(cmd.OutOrStdout(), output)
			if err != nil {
				return err
			}
			if query != "" {
				return listByQuery(cmd, baseURL, p, session, query, maxItems)
			}
			t, err := getTransport(cmd, baseURL)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()

			printed := 0
			for {
				page, err := t.Page(cmd.Context(), session, cursor, limit)
				if err != nil {
					return err
				}
				for _, r := range page.Items {
					if maxItems > 0 && printed >= maxItems {
						return nil
					}
					if err := p.print(r, ""); err != nil {
						return err
					}
					printed++
				}
				if !page.HasMore || page.NextCursor == nil {
					return nil
				}
				cursor = page.NextCursor
			}
		},
	}
	listCmd.Flags().StringP("session", "s", "", "Session id (empty lists every session)")
	listCmd.Flags().StringP("query", "q", "", "Only messages of this query id (HTTP)")
	listCmd.Flags().Uint64("cursor", 0, "Start after this sequence")
	listCmd.Flags().Int("limit", 100, "Page size")
	listCmd.Flags().Int("max", 0, "Stop after N messages (0 = all)")
	listCmd.Flags().StringP("output", "o", "json", "Output: json|text")
	return listCmd
}

// listByQuery prints the correlation-filtered list from GET /v1/messages.
func listByQuery(cmd *cobra.Command, baseURL BaseURLFunc, p *recordPrinter, session, query string, maxItems int) error {
	q := url.Values{"query_id": {query}}
	if session != "" {
		q.Set("session_id", session)
	}
	var out ledgerv1.AppendResponse
	if err := transports.NewHTTPTransport(baseURL(), false).Get(cmd.Context(), "/v1/messages", q, &out); err != nil {
		return err
	}
	for i, r := range out.Messages {
		if maxItems > 0 && i >= maxItems {
			break
		}
		if err := p.print(r, ""); err != nil {
			return err
		}
	}
	return nil
}

// newSessionClearCommand constructs the `session clear` subcommand.
func newSessionClearCommand(baseURL BaseURLFunc) *cobra.Command {
	clearCmd := &cobra.Command{
		Use:     "clear",
		Aliases: []string{"purge"},
		Short:   "Delete a session, one query of a session, or everything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			query, _ := cmd.Flags().GetString("query")
			all, _ := cmd.Flags().GetBool("all")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if all && !confirm {
				return fmt.Errorf("--all deletes every session; pass --confirm")
			}
			t, err := getTransport(cmd, baseURL)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()
			if err := t.Clear(cmd.Context(), ledgerv1.ClearRequest{SessionID: session, QueryID: query, All: all}); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	clearCmd.Flags().StringP("session", "s", "", "Session id")
	clearCmd.Flags().StringP("query", "q", "", "Query id within the session")
	clearCmd.Flags().Bool("all", false, "Delete every session")
	clearCmd.Flags().Bool("confirm", false, "Confirm --all")
	return clearCmd
}

// newSessionTailCommand constructs the `session tail` subcommand.
func newSessionTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the latest page, then follow new messages (reconnects automatically)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			filter, _ := cmd.Flags().GetString("filter")
			pageSize, _ := cmd.Flags().GetInt("page-size")
			buffer, _ := cmd.Flags().GetInt("buffer")
			count, _ := cmd.Flags().GetInt("count")
			reconnect, _ := cmd.Flags().GetDuration("reconnect")
			output, _ := cmd.Flags().GetString("output")
			level, _ := cmd.Flags().GetString("log-level")

			p, err := newRecordPrinter(cmd.OutOrStdout(), output)
			if err != nil {
				return err
			}
			lvl, err := logpkg.ParseLevel(level)
			if err != nil {
				return err
			}
			logger := logpkg.NewLogger(
				logpkg.WithLevel(lvl),
				logpkg.WithFormatter(&logpkg.TextFormatter{}),
				logpkg.WithOutput(&logpkg.ConsoleOutput{Writer: cmd.ErrOrStderr()}),
			)

			t, err := getTransport(cmd, baseURL)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()

			changed := make(chan struct{}, 1)
			c := livetail.New(t.Live(filter), session, livetail.Options{
				PageSize:       pageSize,
				LiveBufferSize: buffer,
				ReconnectDelay: reconnect,
				Logger:         logger,
				OnChange: func() {
					select {
					case changed <- struct{}{}:
					default:
					}
				},
			})
			defer c.Close()
			if err := c.Start(cmd.Context()); err != nil {
				logger.Warn("backfill failed; following live messages only", logpkg.Err(err))
			}
			return followEntries(cmd, c, p, changed, count)
		},
	}
	tailCmd.Flags().StringP("session", "s", "", "Session id (empty follows every session)")
	tailCmd.Flags().String("filter", "", "CEL filter (server-side)")
	tailCmd.Flags().Int("page-size", livetail.DefaultPageSize, "Backfill page size")
	tailCmd.Flags().Int("buffer", livetail.DefaultLiveBufferSize, "Live buffer size")
	tailCmd.Flags().Int("count", 0, "Stop after N messages (0 = infinite)")
	tailCmd.Flags().Duration("reconnect", livetail.DefaultReconnectDelay, "Reconnect delay")
	tailCmd.Flags().String("log-level", "warn", "Log level for connection events on stderr")
	tailCmd.Flags().StringP("output", "o", "json", "Output: json|text")
	return tailCmd
}

// followEntries prints entries in sequence order as they arrive, skipping
// anything at or below the highest sequence already printed.
func followEntries(cmd *cobra.Command, c *livetail.Client, p *recordPrinter, changed <-chan struct{}, count int) error {
	var watermark uint64
	printed := 0
	for {
		entries := c.Entries()
		sort.Slice(entries, func(i, j int) bool { return entries[i].Record.Sequence < entries[j].Record.Sequence })
		for _, e := range entries {
			if e.Record.Sequence <= watermark {
				continue
			}
			if err := p.print(e.Record, e.Timestamp); err != nil {
				return err
			}
			watermark = e.Record.Sequence
			printed++
			if count > 0 && printed >= count {
				return nil
			}
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-changed:
		}
	}
}

// newSessionWaitCommand constructs the `session wait` subcommand.
func newSessionWaitCommand(baseURL BaseURLFunc) *cobra.Command {
	waitCmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until a session receives its first message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			q := url.Values{"session_id": {session}, "timeout_ms": {strconv.FormatInt(timeout.Milliseconds(), 10)}}
			var out struct {
				SessionID string `json:"session_id"`
				Exists    bool   `json:"exists"`
			}
			if err := transports.NewHTTPTransport(baseURL(), false).Get(cmd.Context(), "/v1/sessions/wait", q, &out); err != nil {
				return err
			}
			if !out.Exists {
				return fmt.Errorf("session %s did not appear within %s", session, timeout)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	waitCmd.Flags().StringP("session", "s", "", "Session id")
	waitCmd.Flags().Duration("timeout", 30*time.Second, "How long to wait (max 5m)")
	return waitCmd
}

// newSessionLsCommand constructs the `session ls` subcommand.
func newSessionLsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List sessions that hold messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Sessions []string `json:"sessions"`
			}
			if err := transports.NewHTTPTransport(baseURL(), false).Get(cmd.Context(), "/v1/sessions", nil, &out); err != nil {
				return err
			}
			for _, s := range out.Sessions {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

// asJSON sends valid JSON as-is and anything else as a JSON string.
func asJSON(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

// readMessages loads a file (or stdin for "-"); a top-level array yields
// one message per element.
func readMessages(stdin io.Reader, path string) ([]json.RawMessage, error) {
	var b []byte
	var err error
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("%s: not valid JSON", path)
	}
	var arr []json.RawMessage
	if json.Unmarshal(b, &arr) == nil {
		return arr, nil
	}
	return []json.RawMessage{json.RawMessage(b)}, nil
}
