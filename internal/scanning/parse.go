package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rawItem mirrors the loose shape the model returns so each field can be checked
type rawItem struct {
	Name     *string         `json:"name"`
	Quantity json.RawMessage `json:"quantity"`
	Unit     *string         `json:"unit"`
}

// stripCodeFence removes markdown code blocks the models like to wrap JSON in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseItemsJSON validates the model output and turns it into parsed items.
// An empty response is a service error, anything else that does not match
// [{"name": string, "quantity": number, "unit"?: string}] is a parse error.
func parseItemsJSON(text string) ([]ParsedItem, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response content", ErrAnalysisService)
	}

	text, err := itemArray(text)
	if err != nil {
		return nil, err
	}

	var raw []rawItem
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %w", ErrAnalysisParse, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: response is null, not an array", ErrAnalysisParse)
	}

	items := make([]ParsedItem, 0, len(raw))
	for i, r := range raw {
		item, err := r.normalize()
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrAnalysisParse, i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// itemArray returns the JSON array in text. Well-formed JSON is used as is so
// an object wrapping the array is rejected. Otherwise the outermost brackets
// are cut out of the surrounding prose, provided no object opens before them.
func itemArray(text string) (string, error) {
	if json.Valid([]byte(text)) {
		return text, nil
	}

	startIdx := strings.Index(text, "[")
	if startIdx == -1 {
		return "", fmt.Errorf("%w: no JSON array found in response", ErrAnalysisParse)
	}
	if strings.Contains(text[:startIdx], "{") {
		return "", fmt.Errorf("%w: item array is nested inside an object", ErrAnalysisParse)
	}
	endIdx := strings.LastIndex(text, "]")
	if endIdx < startIdx {
		return "", fmt.Errorf("%w: invalid JSON array in response", ErrAnalysisParse)
	}
	return text[startIdx : endIdx+1], nil
}

func (r rawItem) normalize() (ParsedItem, error) {
	if r.Name == nil {
		return ParsedItem{}, fmt.Errorf("missing name")
	}
	name := strings.TrimSpace(*r.Name)
	if name == "" {
		return ParsedItem{}, fmt.Errorf("empty name")
	}

	quantity, err := parseQuantity(r.Quantity)
	if err != nil {
		return ParsedItem{}, err
	}

	var unit string
	if r.Unit != nil {
		unit = strings.TrimSpace(*r.Unit)
	}

	return ParsedItem{Name: name, Quantity: quantity, Unit: unit}, nil
}

// parseQuantity accepts a JSON number or a string holding one, e.g. "2"
func parseQuantity(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("missing quantity")
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("quantity is not a number: %s", raw)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("quantity is not a number: %q", s)
	}
	return n, nil
}
