package pantry

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zombor/pantry-tracker/internal/scanning"
)

// dateLayout is fixed width so the text column sorts chronologically
const dateLayout = "2006-01-02T15:04:05.000000000Z"

// Item is a grocery entry persisted in the pantry
type Item struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity"`
	Unit      string    `json:"unit,omitempty"` // empty means a plain count
	DateAdded time.Time `json:"dateAdded"`
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// StoreOption customizes a Store at construction time
type StoreOption func(*storeOptions)

type storeOptions struct {
	clock TimeSource
}

// WithTimeSource overrides the clock used to stamp inserted batches
func WithTimeSource(ts TimeSource) StoreOption {
	return func(o *storeOptions) {
		o.clock = ts
	}
}

func applyOptions(opts []StoreOption) storeOptions {
	o := storeOptions{clock: &defaultTimeSource{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newBatch validates parsed items and stamps them with one shared insertion time.
// IDs are left for the backend to assign.
func newBatch(parsed []scanning.ParsedItem, now time.Time) ([]Item, error) {
	dateAdded := normalizeTime(now)
	items := make([]Item, 0, len(parsed))
	for i, p := range parsed {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("%w: item %d has an empty name", ErrStoreWrite, i)
		}
		if math.IsNaN(p.Quantity) || math.IsInf(p.Quantity, 0) {
			return nil, fmt.Errorf("%w: item %d has a non-finite quantity", ErrStoreWrite, i)
		}
		items = append(items, Item{
			Name:      p.Name,
			Quantity:  p.Quantity,
			Unit:      p.Unit,
			DateAdded: dateAdded,
		})
	}
	return items, nil
}

// normalizeTime drops the monotonic reading so stored and returned times compare equal
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Round(0)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// sortItems orders newest batches first and keeps insertion order inside a batch
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].DateAdded.Equal(items[j].DateAdded) {
			return items[i].DateAdded.After(items[j].DateAdded)
		}
		return items[i].ID < items[j].ID
	})
}
