// Package serverrun exposes the `server start` command and the shared Run
// entrypoint that opens the runtime, serves HTTP and gRPC, and saves the
// store on shutdown.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Snapshot.Path = "./data/memory.json.zst"
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
