// Package config provides loading and environment overlay for the ledger
// server configuration. It exposes a Default() baseline, file loading (JSON
// with comments, or YAML) and an environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/ledger.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
//	defer rt.Close(ctx)
package config
