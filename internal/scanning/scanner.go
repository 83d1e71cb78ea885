package scanning

import (
	"context"
	"errors"
)

var (
	// ErrAnalysisService is returned when the analysis service cannot be reached,
	// answers with a failure status, or returns no content.
	ErrAnalysisService = errors.New("analysis service error")

	// ErrAnalysisParse is returned when the service content is not a JSON array of items
	ErrAnalysisParse = errors.New("analysis parse error")

	// ErrUnsupportedImage is returned when an upload cannot be decoded as an image
	ErrUnsupportedImage = errors.New("unsupported image")
)

// ParsedItem is a single grocery line extracted from a receipt, before it is
// stored in the pantry
type ParsedItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
}

// Scanner defines the interface for receipt analysis
type Scanner interface {
	// Analyze sends a JPEG receipt image to the analysis service and returns the items on it
	Analyze(ctx context.Context, jpegData []byte) ([]ParsedItem, error)
	// Close closes the scanner and releases resources
	Close() error
}
