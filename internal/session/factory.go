package session

import (
	"context"
	"fmt"

	"biztrack/internal/log"
)

// BackendType selects where sessions are kept.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is known
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds what NewStore needs to build a store.
type Config struct {
	Backend BackendType
	// SQLite specific
	DBPath string
}

func (c Config) Validate() error {
	if !c.Backend.IsValid() {
		return fmt.Errorf("invalid session backend: %s", c.Backend)
	}
	if c.Backend == SQLiteBackend && c.DBPath == "" {
		return fmt.Errorf("session database path is required for sqlite backend")
	}
	return nil
}

// NewStore creates the store selected by cfg.
func NewStore(ctx context.Context, cfg Config, logger *log.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSession)

	switch cfg.Backend {
	case SQLiteBackend:
		store, err := NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize session database: %w", err)
		}
		logger.DebugContext(ctx, "Initialized sqlite session store", "db_path", cfg.DBPath)
		return store, nil
	case MemoryBackend:
		logger.DebugContext(ctx, "Initialized memory session store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}
}
