package pantry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/pantry-tracker/internal/scanning"
)

const itemsBucketName = "items"

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db    *bbolt.DB
	clock TimeSource
}

// NewBoltStore opens (or creates) the BoltDB file at path
func NewBoltStore(path string, opts ...StoreOption) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening boltdb: %w", ErrStoreInit, err)
	}

	o := applyOptions(opts)
	return &BoltStore{db: db, clock: o.clock}, nil
}

// Init creates the items bucket if it doesn't exist
func (b *BoltStore) Init(ctx context.Context) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(itemsBucketName))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: creating bucket: %w", ErrStoreInit, err)
	}
	return nil
}

// itemKey encodes ids big-endian so the bucket iterates in insertion order
func itemKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// InsertMany saves the batch in a single update transaction. Bolt rolls the
// whole transaction back, sequence included, if any put fails.
func (b *BoltStore) InsertMany(ctx context.Context, parsed []scanning.ParsedItem) ([]Item, error) {
	items, err := newBatch(parsed, b.clock.Now())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %q not initialized", itemsBucketName)
		}
		for i := range items {
			seq, err := bucket.NextSequence()
			if err != nil {
				return fmt.Errorf("allocating id: %w", err)
			}
			items[i].ID = int64(seq)

			data, err := json.Marshal(items[i])
			if err != nil {
				return fmt.Errorf("marshaling item: %w", err)
			}
			if err := bucket.Put(itemKey(items[i].ID), data); err != nil {
				return fmt.Errorf("putting item %d: %w", items[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	return items, nil
}

// GetAll returns all items, newest batch first
func (b *BoltStore) GetAll(ctx context.Context) ([]Item, error) {
	items := make([]Item, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %q not initialized", itemsBucketName)
		}
		return bucket.ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreRead, err)
	}

	sortItems(items)
	return items, nil
}

// DeleteByID removes an item from the database
func (b *BoltStore) DeleteByID(ctx context.Context, id int64) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %q not initialized", itemsBucketName)
		}
		// Delete on a missing key is a no-op in bolt
		return bucket.Delete(itemKey(id))
	})
	if err != nil {
		return fmt.Errorf("%w: deleting item %d: %w", ErrStoreWrite, id, err)
	}
	return nil
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
