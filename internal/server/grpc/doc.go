// Package grpcserver hosts the gRPC server for the ledger, registering the
// ledger.v1.Ledger service and the standard health service and delegating
// to the shared sessions service.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":9090")
package grpcserver
