// Package runtime wires config, storage, the ledger store and the sessions
// service into a single-node instance. It exposes Open/Close and a basic
// health check used by the transports.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Snapshot.Path = "./data/memory.json"
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close(ctx)
//	_, _ = rt.Store().Append(ctx, "session-1", json.RawMessage(`{"role":"user"}`))
package runtime
