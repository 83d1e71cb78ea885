package pantry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zombor/pantry-tracker/internal/scanning"
)

var (
	// ErrStoreInit is returned when the backing medium cannot be opened or prepared
	ErrStoreInit = errors.New("store init error")
	// ErrStoreWrite is returned when an insert or delete cannot be applied
	ErrStoreWrite = errors.New("store write error")
	// ErrStoreRead is returned when items cannot be loaded
	ErrStoreRead = errors.New("store read error")
)

// Store defines the interface for pantry persistence
type Store interface {
	// Init prepares the backing table or bucket. Safe to call more than once.
	Init(ctx context.Context) error

	// InsertMany stores a batch under one shared timestamp, assigning each item
	// a fresh id. Either every item is stored or none is.
	InsertMany(ctx context.Context, items []scanning.ParsedItem) ([]Item, error)

	// GetAll returns every item, newest batch first
	GetAll(ctx context.Context) ([]Item, error)

	// DeleteByID removes an item. Deleting an unknown id is not an error.
	DeleteByID(ctx context.Context, id int64) error

	// Close releases the backing medium
	Close() error
}

// Backend names accepted by OpenStore
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// StoreConfig selects and locates a Store backend
type StoreConfig struct {
	Backend string
	Path    string
	// MemoryFallback swaps in a MemoryStore when the durable backend cannot be initialized
	MemoryFallback bool
}

// OpenStore constructs and initializes the configured backend
func OpenStore(ctx context.Context, cfg StoreConfig, opts ...StoreOption) (Store, error) {
	if cfg.Backend == BackendMemory {
		return NewMemoryStore(opts...), nil
	}

	store, err := openDurable(ctx, cfg, opts...)
	if err != nil {
		if cfg.MemoryFallback && errors.Is(err, ErrStoreInit) {
			slog.Warn("Durable store unavailable, falling back to in-memory store",
				"backend", cfg.Backend,
				"path", cfg.Path,
				"error", err,
			)
			return NewMemoryStore(opts...), nil
		}
		return nil, err
	}
	return store, nil
}

func openDurable(ctx context.Context, cfg StoreConfig, opts ...StoreOption) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case BackendSQLite:
		store, err = NewSQLiteStore(cfg.Path, opts...)
	case BackendBolt:
		store, err = NewBoltStore(cfg.Path, opts...)
	default:
		return nil, fmt.Errorf("unknown store backend %q (valid: %s, %s, %s)", cfg.Backend, BackendSQLite, BackendBolt, BackendMemory)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
