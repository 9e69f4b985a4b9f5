package config

import (
	"os"
	"path/filepath"
)

// DataDirEnv overrides the default data directory.
const DataDirEnv = "LEDGER_DATA_DIR"

// DefaultDataDir picks where the pebble backend keeps its files when no
// directory is configured. LEDGER_DATA_DIR and XDG_DATA_HOME win in that
// order, then the first existing OS convention, then ~/.ledger.
func DefaultDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ledger")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	for _, c := range []struct{ probe, dir string }{
		{"/var/lib", "/var/lib/ledger"},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", "Ledger")},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", "Ledger")},
	} {
		if fi, err := os.Stat(c.probe); err == nil && fi.IsDir() {
			return c.dir
		}
	}
	return filepath.Join(home, ".ledger")
}
