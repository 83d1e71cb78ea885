package pantry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/zombor/pantry-tracker/internal/scanning"
)

// ImageEncoder converts an uploaded image into the JPEG bytes sent for analysis
type ImageEncoder interface {
	Encode(data []byte, contentType string) ([]byte, error)
}

// IDGenerator generates unique prefixes for capture files
type IDGenerator interface {
	Generate() string
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// IngestResult reports what a receipt added to the pantry
type IngestResult struct {
	Count   int    `json:"count"`
	Items   []Item `json:"items"`
	Capture string `json:"capture,omitempty"`
}

// Service turns receipt images into pantry items
type Service struct {
	store       Store
	scanner     scanning.Scanner
	captures    Storage
	encoder     ImageEncoder
	idGenerator IDGenerator
}

// NewService creates a new Service with the JPEG encoder and UUID capture names
func NewService(store Store, scanner scanning.Scanner, captures Storage) *Service {
	return NewServiceWithDeps(store, scanner, captures, scanning.JPEGEncoder{}, &uuidGenerator{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(store Store, scanner scanning.Scanner, captures Storage, encoder ImageEncoder, idGen IDGenerator) *Service {
	return &Service{
		store:       store,
		scanner:     scanner,
		captures:    captures,
		encoder:     encoder,
		idGenerator: idGen,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// captureName builds a stored filename from the upload name, dropping the
// extension since every capture is saved as JPEG
func captureName(id, filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")

	// Phones generate long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return fmt.Sprintf("%s_%s.jpg", id, base)
}

// Ingest encodes a receipt image, analyzes it, and stores the resulting items.
// When analysis or storage fails nothing is added and the capture is removed.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte, contentType string) (*IngestResult, error) {
	jpegData, err := s.encoder.Encode(data, contentType)
	if err != nil {
		slog.Error("Failed to encode receipt image",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	capture, err := s.captures.Save(captureName(s.idGenerator.Generate(), filename), jpegData)
	if err != nil {
		// The preview is optional, ingestion carries on without it
		slog.Warn("Failed to save capture", "filename", filename, "error", err)
		capture = ""
	}

	parsed, err := s.scanner.Analyze(ctx, jpegData)
	if err != nil {
		slog.Error("Failed to analyze receipt",
			"filename", filename,
			"jpeg_size", len(jpegData),
			"error", err,
		)
		s.discardCapture(capture)
		return nil, fmt.Errorf("analyzing receipt: %w", err)
	}

	items, err := s.store.InsertMany(ctx, parsed)
	if err != nil {
		slog.Error("Failed to store receipt items", "count", len(parsed), "error", err)
		s.discardCapture(capture)
		return nil, fmt.Errorf("saving items: %w", err)
	}
	if items == nil {
		items = []Item{}
	}

	slog.Info("Receipt ingested", "filename", filename, "count", len(items), "capture", capture)
	return &IngestResult{
		Count:   len(items),
		Items:   items,
		Capture: capture,
	}, nil
}

func (s *Service) discardCapture(capture string) {
	if capture == "" {
		return
	}
	if err := s.captures.Delete(capture); err != nil {
		slog.Warn("Failed to delete capture", "capture", capture, "error", err)
	}
}

// ListItems returns every pantry item, newest first
func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	items, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// DeleteItem removes a pantry item
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// GetCapture returns a stored receipt image
func (s *Service) GetCapture(name string) ([]byte, error) {
	data, err := s.captures.Get(name)
	if err != nil {
		return nil, fmt.Errorf("getting capture: %w", err)
	}
	return data, nil
}
