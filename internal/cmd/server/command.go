package serverrun

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	cfgpkg "github.com/remiverdiesen/agents-at-scale/internal/config"
)

// NewCommand constructs the `server` command group.
func NewCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverCmd.AddCommand(NewStartCommand())
	return serverCmd
}

// NewStartCommand constructs `server start`. Settings are layered: defaults,
// then the --config file, then LEDGER_* environment variables, then flags.
func NewStartCommand() *cobra.Command {
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the ledger server (HTTP and gRPC)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := Run(cmd.Context(), Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := startCmd.Flags()
	f.String("config", "", "Config file (.json, .jsonc or .yaml)")
	f.String("http", "", "HTTP listen address (default :8080)")
	f.String("grpc", "", "gRPC listen address; \"off\" disables gRPC (default :9090)")
	f.String("snapshot", "", "Snapshot file, or database directory with --backend=pebble")
	f.String("backend", "", "Snapshot backend: file|pebble")
	f.String("fsync", "", "Pebble fsync mode: always|interval|never")
	f.Int("max-records", 0, "Keep at most N records (0 = unbounded)")
	f.Duration("max-age", 0, "Evict records older than this (0 = unbounded)")
	f.String("max-message-bytes", "", "Largest accepted message, e.g. 10MiB")
	f.String("cors-origin", "", "Access-Control-Allow-Origin value")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	f.Int("sub-buf", 0, "Send queue length per live tail")
	f.Int("sub-flush-ms", 0, "Live tail flush window in ms")
	return startCmd
}

// loadConfig layers file, environment and explicitly set flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	f := cmd.Flags()
	path, _ := f.GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)

	if f.Changed("http") {
		cfg.HTTP.Addr, _ = f.GetString("http")
	}
	if f.Changed("grpc") {
		addr, _ := f.GetString("grpc")
		if addr == "off" {
			addr = ""
		}
		cfg.GRPC.Addr = addr
	}
	if f.Changed("snapshot") {
		cfg.Snapshot.Path, _ = f.GetString("snapshot")
	}
	if f.Changed("backend") {
		cfg.Snapshot.Backend, _ = f.GetString("backend")
	}
	if f.Changed("fsync") {
		cfg.Snapshot.Fsync, _ = f.GetString("fsync")
	}
	if f.Changed("max-records") {
		cfg.MaxRecords, _ = f.GetInt("max-records")
	}
	if f.Changed("max-age") {
		d, _ := f.GetDuration("max-age")
		cfg.MaxAgeSeconds = int(d / time.Second)
	}
	if f.Changed("max-message-bytes") {
		s, _ := f.GetString("max-message-bytes")
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return cfgpkg.Config{}, fmt.Errorf("invalid --max-message-bytes: %w", err)
		}
		cfg.MaxMessageBytes = int(n)
	}
	if f.Changed("cors-origin") {
		cfg.HTTP.CORSOrigin, _ = f.GetString("cors-origin")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.Log.Format, _ = f.GetString("log-format")
	}
	if f.Changed("sub-buf") {
		cfg.Tail.BufferSize, _ = f.GetInt("sub-buf")
	}
	if f.Changed("sub-flush-ms") {
		cfg.Tail.FlushMs, _ = f.GetInt("sub-flush-ms")
	}
	return cfg, cfg.Validate()
}
