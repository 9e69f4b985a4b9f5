// Package log is the structured logger shared by the ledger server, its
// transports and the CLI.
//
// Components take a Logger, tag it once with WithComponent and attach
// per-call context as Fields:
//
//	l := log.NewLogger(log.WithFormatter(&log.TextFormatter{}), log.WithOutput(log.NewConsoleOutput()))
//	store := l.WithComponent("store")
//	store.Info("appended", log.Str("session_id", key), log.Int("count", n))
//
// Entries flow through a slog.Handler into a Formatter (text or JSON) and one
// or more Outputs. Children share the parent's level, so SetLevel on the root
// affects every component. ApplyConfig builds a logger from the YAML log
// section, including key redaction and per-message sampling.
//
// Request-scoped values travel on the context: the HTTP server stores the
// request ID with ContextWithFields and handlers log through WithContext.
//
// ToStdLogger and RedirectStdLog adapt the facade for code that wants a
// *log.Logger, and PebbleLogger satisfies Pebble's logger interface.
package log
