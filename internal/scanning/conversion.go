package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// jpegQuality keeps receipt text legible while staying well under provider upload limits
const jpegQuality = 90

// extractionPrompt is the shared prompt used by all providers for reading receipts
const extractionPrompt = `Please analyze this receipt and extract all food items with their quantities. Format the response as a JSON array of objects with 'name' and 'quantity' properties, and a 'unit' property when the receipt shows one. For example: [{"name": "Apples", "quantity": 2}, {"name": "Milk", "quantity": 1, "unit": "gallon"}]

Important:
- The quantity must be a number (not a string)
- Leave out non-food lines such as taxes, totals, bags, discounts and deposits
- If the receipt has no food items, return []
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// JPEGEncoder normalizes captured receipts (JPEG, PNG, GIF, HEIC, PDF) to JPEG
type JPEGEncoder struct{}

// Encode converts the upload to JPEG bytes, passing JPEG data through untouched
func (JPEGEncoder) Encode(data []byte, contentType string) ([]byte, error) {
	// Normalize MIME type (lowercase, trim whitespace)
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	switch {
	case mimeType == "application/pdf" || isPDF(data):
		img, err := pdfToImage(data)
		if err != nil {
			return nil, fmt.Errorf("%w: converting PDF: %w", ErrUnsupportedImage, err)
		}
		return encodeJPEG(img)
	case isJPEG(data):
		return data, nil
	}

	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}
	return encodeJPEG(img)
}

// pdfToImage renders the first page of a PDF (most receipts are single page)
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeImage decodes HEIC through the pure Go decoder and everything else through image.Decode
func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("supported formats are JPEG, PNG, GIF, HEIC, HEIF and PDF: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// encodeJPEG flattens transparency onto white before encoding
func encodeJPEG(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func isJPEG(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
