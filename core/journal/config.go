package journal

import "fmt"

// Config selects the journal backend.
type Config struct {
	// Backend is "none", "jsonl" or "sqlite".
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// Rotation limits for the jsonl backend. MaxSizeMB of zero disables
	// rotation.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// Open builds the configured store.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "jsonl":
		if cfg.Path == "" {
			return nil, fmt.Errorf("journal: jsonl backend requires a path")
		}
		if cfg.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return NewJSONLStore(cfg.Path)
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("journal: sqlite backend requires a path")
		}
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("journal: unknown backend %q", cfg.Backend)
	}
}
