package pantry

import (
	"context"
	"sync"

	"github.com/zombor/pantry-tracker/internal/scanning"
)

// MemoryStore implements the Store interface in process memory. Nothing
// survives a restart; it stands in where no durable backend can be opened.
type MemoryStore struct {
	mu     sync.Mutex
	items  []Item
	lastID int64
	clock  TimeSource
}

// NewMemoryStore creates an empty, isolated MemoryStore
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	o := applyOptions(opts)
	return &MemoryStore{clock: o.clock}
}

// Init is a no-op
func (m *MemoryStore) Init(ctx context.Context) error {
	return nil
}

// InsertMany appends the batch after validating every item
func (m *MemoryStore) InsertMany(ctx context.Context, parsed []scanning.ParsedItem) ([]Item, error) {
	items, err := newBatch(parsed, m.clock.Now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range items {
		m.lastID++
		items[i].ID = m.lastID
	}
	m.items = append(m.items, items...)

	out := make([]Item, len(items))
	copy(out, items)
	return out, nil
}

// GetAll returns a sorted copy of the items
func (m *MemoryStore) GetAll(ctx context.Context) ([]Item, error) {
	m.mu.Lock()
	items := make([]Item, len(m.items))
	copy(items, m.items)
	m.mu.Unlock()

	sortItems(items)
	return items, nil
}

// DeleteByID removes the item if present
func (m *MemoryStore) DeleteByID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.items[:0]
	for _, item := range m.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	m.items = kept
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
