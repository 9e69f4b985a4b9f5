// Package livetail is a resumable live-tail reader for one session of a
// ledger server.
//
// A Client fetches one backfill page, then opens a push subscription from
// the highest sequence it has seen. Pushed records land in a bounded
// most-recent-first ring; backfilled pages accumulate in a separate
// buffer that LoadMore extends. When the push connection fails the client
// waits ReconnectDelay and resumes strictly after the last sequence it
// observed, so nothing is delivered twice and nothing committed is missed.
//
// Transports:
//   - HTTPTransport: JSON pages and Server-Sent Events.
//   - WSTransport: JSON pages over HTTP and a WebSocket push channel.
//   - GRPCTransport: the ledger.v1.Ledger service.
//
// Example:
//
//	c := livetail.New(livetail.NewHTTPTransport("http://localhost:8080", nil), "session-1", livetail.Options{})
//	if err := c.Start(ctx); err != nil {
//		log.Printf("backfill failed: %v", err)
//	}
//	defer c.Close()
//	for _, e := range c.Entries() {
//		fmt.Println(e.Timestamp, string(e.Record.Message))
//	}
package livetail
