package config

import (
	"os"
	"strconv"
)

// FromEnv overlays LEDGER_* environment variables onto cfg. The unprefixed
// names used by earlier deployments (MAX_MESSAGE_SIZE_MB, MAX_MEMORY_DB,
// MAX_ITEM_AGE, MEMORY_FILE_PATH) are honored when the prefixed variable is
// unset.
func FromEnv(cfg *Config) {
	if n, ok := envInt("LEDGER_MAX_MESSAGE_BYTES"); ok {
		cfg.MaxMessageBytes = n
	} else if n, ok := envInt("MAX_MESSAGE_SIZE_MB"); ok {
		cfg.MaxMessageBytes = n * 1024 * 1024
	}
	if n, ok := envInt("LEDGER_MAX_RECORDS", "MAX_MEMORY_DB"); ok {
		cfg.MaxRecords = n
	}
	if n, ok := envInt("LEDGER_MAX_AGE_SECONDS", "MAX_ITEM_AGE"); ok {
		cfg.MaxAgeSeconds = n
	}
	if v := envStr("LEDGER_SNAPSHOT_PATH", "MEMORY_FILE_PATH"); v != "" {
		cfg.Snapshot.Path = v
	}
	if v := envStr("LEDGER_SNAPSHOT_BACKEND"); v != "" {
		cfg.Snapshot.Backend = v
	}
	if n, ok := envInt("LEDGER_SNAPSHOT_TIMEOUT_MS"); ok {
		cfg.Snapshot.TimeoutMs = n
	}
	if v := envStr("LEDGER_SNAPSHOT_FSYNC"); v != "" {
		cfg.Snapshot.Fsync = v
	}
	if v := envStr("LEDGER_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v, ok := os.LookupEnv("LEDGER_GRPC_ADDR"); ok {
		cfg.GRPC.Addr = v
	}
	if v := envStr("LEDGER_CORS_ORIGIN"); v != "" {
		cfg.HTTP.CORSOrigin = v
	}
	if n, ok := envInt("LEDGER_SUB_BUF"); ok && n > 0 {
		if n > 65536 {
			n = 65536
		}
		cfg.Tail.BufferSize = n
	}
	if n, ok := envInt("LEDGER_SUB_FLUSH_MS"); ok && n >= 0 {
		cfg.Tail.FlushMs = n
	}
	if v := envStr("LEDGER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := envStr("LEDGER_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// envStr returns the first non-empty variable among names.
func envStr(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// envInt parses the first set variable among names. Unparseable values are
// ignored.
func envInt(names ...string) (int, bool) {
	for _, n := range names {
		v := os.Getenv(n)
		if v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		return i, true
	}
	return 0, false
}
