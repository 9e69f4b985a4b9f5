package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// Snapshot backends.
const (
	BackendFile   = "file"
	BackendPebble = "pebble"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// MaxMessageBytes limits one payload's compacted JSON size.
	MaxMessageBytes int `json:"maxMessageBytes" yaml:"maxMessageBytes"`
	// MaxRecords keeps only the newest records; 0 is unbounded.
	MaxRecords int `json:"maxRecords" yaml:"maxRecords"`
	// MaxAgeSeconds evicts older records; 0 is unbounded.
	MaxAgeSeconds int            `json:"maxAgeSeconds" yaml:"maxAgeSeconds"`
	Snapshot      SnapshotConfig `json:"snapshot" yaml:"snapshot"`
	HTTP          HTTPConfig     `json:"http" yaml:"http"`
	GRPC          GRPCConfig     `json:"grpc" yaml:"grpc"`
	Tail          TailConfig     `json:"tail" yaml:"tail"`
	Log           logpkg.Config  `json:"log" yaml:"log"`
}

// SnapshotConfig selects persistence.
type SnapshotConfig struct {
	// Path is the snapshot file, or the database directory for pebble.
	// Empty disables file persistence.
	Path      string `json:"path" yaml:"path"`
	Backend   string `json:"backend" yaml:"backend"`
	TimeoutMs int    `json:"timeoutMs" yaml:"timeoutMs"`
	// Fsync is "always", "interval" or "never" (pebble only).
	Fsync string `json:"fsync" yaml:"fsync"`
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Addr       string `json:"addr" yaml:"addr"`
	CORSOrigin string `json:"corsOrigin" yaml:"corsOrigin"`
}

// GRPCConfig configures the gRPC listener. An empty address disables it.
type GRPCConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// TailConfig tunes server-side push delivery.
type TailConfig struct {
	// BufferSize is the per-subscriber send queue length.
	BufferSize int `json:"bufferSize" yaml:"bufferSize"`
	// FlushMs coalesces sends for up to this window before flushing.
	FlushMs int `json:"flushMs" yaml:"flushMs"`
	// PageSize is the backlog page size used while replaying.
	PageSize int `json:"pageSize" yaml:"pageSize"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		MaxMessageBytes: 10 * 1024 * 1024,
		Snapshot: SnapshotConfig{
			Backend:   BackendFile,
			TimeoutMs: 5000,
			Fsync:     "interval",
		},
		HTTP: HTTPConfig{Addr: ":8080", CORSOrigin: "*"},
		GRPC: GRPCConfig{Addr: ":9090"},
		Tail: TailConfig{BufferSize: 1024, PageSize: 256},
		Log:  logpkg.Config{Level: "info", Format: "text"},
	}
}

// MaxAge returns the age limit as a duration.
func (c Config) MaxAge() time.Duration { return time.Duration(c.MaxAgeSeconds) * time.Second }

// SnapshotTimeout returns the per-write snapshot timeout.
func (c Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.Snapshot.TimeoutMs) * time.Millisecond
}

// FlushWindow returns the tail flush window.
func (c Config) FlushWindow() time.Duration { return time.Duration(c.Tail.FlushMs) * time.Millisecond }

// SnapshotPath resolves the persistence location. Pebble defaults to a
// directory under DefaultDataDir; the file backend has no default.
func (c Config) SnapshotPath() string {
	if c.Snapshot.Path != "" {
		return c.Snapshot.Path
	}
	if c.Snapshot.Backend == BackendPebble {
		return filepath.Join(DefaultDataDir(), "pebble")
	}
	return ""
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.MaxMessageBytes < 0:
		return fmt.Errorf("config: maxMessageBytes must not be negative")
	case c.MaxRecords < 0:
		return fmt.Errorf("config: maxRecords must not be negative")
	case c.MaxAgeSeconds < 0:
		return fmt.Errorf("config: maxAgeSeconds must not be negative")
	}
	switch c.Snapshot.Backend {
	case "", BackendFile, BackendPebble:
	default:
		return fmt.Errorf("config: unknown snapshot backend %q", c.Snapshot.Backend)
	}
	switch c.Snapshot.Fsync {
	case "", "always", "interval", "never":
	default:
		return fmt.Errorf("config: unknown fsync mode %q", c.Snapshot.Fsync)
	}
	return nil
}

// Load reads configuration from a JSON (comments allowed) or YAML file, by
// extension. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(b), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
