// Package httpserver provides the REST gateway for the ledger: JSON
// endpoints for appends, listings and clears, a paginated message stream,
// SSE and WebSocket live tails, and the Prometheus endpoint.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
