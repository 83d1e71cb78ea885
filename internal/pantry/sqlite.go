package pantry

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zombor/pantry-tracker/internal/scanning"
)

const createItemsTable = `
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	quantity REAL NOT NULL,
	unit TEXT,
	dateAdded TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_date_added ON items(dateAdded);`

// SQLiteStore implements the Store interface on an embedded SQLite database
type SQLiteStore struct {
	db    *sql.DB
	clock TimeSource
	// mu serializes writers so id assignment within a batch cannot interleave
	mu sync.Mutex
}

// NewSQLiteStore opens the database file at path. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string, opts ...StoreOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite: %w", ErrStoreInit, err)
	}
	// A single connection keeps ":memory:" databases shared and matches the single-writer model
	db.SetMaxOpenConns(1)

	o := applyOptions(opts)
	return &SQLiteStore{db: db, clock: o.clock}, nil
}

// Init creates the items table if it does not exist
func (s *SQLiteStore) Init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: connecting to sqlite: %w", ErrStoreInit, err)
	}
	if _, err := s.db.ExecContext(ctx, createItemsTable); err != nil {
		return fmt.Errorf("%w: creating items table: %w", ErrStoreInit, err)
	}
	return nil
}

// InsertMany writes the batch inside one transaction
func (s *SQLiteStore) InsertMany(ctx context.Context, parsed []scanning.ParsedItem) ([]Item, error) {
	items, err := newBatch(parsed, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %w", ErrStoreWrite, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO items (name, quantity, unit, dateAdded) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("%w: preparing insert: %w", ErrStoreWrite, err)
	}
	defer stmt.Close()

	dateAdded := formatDate(items[0].DateAdded)
	for i := range items {
		unit := sql.NullString{String: items[i].Unit, Valid: items[i].Unit != ""}
		result, err := stmt.ExecContext(ctx, items[i].Name, items[i].Quantity, unit, dateAdded)
		if err != nil {
			return nil, fmt.Errorf("%w: inserting item %q: %w", ErrStoreWrite, items[i].Name, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: reading inserted id: %w", ErrStoreWrite, err)
		}
		items[i].ID = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing batch: %w", ErrStoreWrite, err)
	}
	return items, nil
}

// GetAll returns every item ordered by dateAdded descending, then id
func (s *SQLiteStore) GetAll(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, quantity, unit, dateAdded FROM items ORDER BY dateAdded DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("%w: querying items: %w", ErrStoreRead, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var (
			item      Item
			unit      sql.NullString
			dateAdded string
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &unit, &dateAdded); err != nil {
			return nil, fmt.Errorf("%w: scanning item: %w", ErrStoreRead, err)
		}
		item.Unit = unit.String
		item.DateAdded, err = parseDate(dateAdded)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d has a malformed dateAdded: %w", ErrStoreRead, item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating items: %w", ErrStoreRead, err)
	}

	// Rows written with millisecond precision ("...123Z") sort lexically after
	// nanosecond rows from the same millisecond, so order by the parsed time
	sortItems(items)
	return items, nil
}

// DeleteByID removes an item from the database
func (s *SQLiteStore) DeleteByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: deleting item %d: %w", ErrStoreWrite, id, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
