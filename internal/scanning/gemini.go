package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	return &Gemini{client: client, model: model}, nil
}

// Analyze sends the receipt to Gemini and parses the item list
func (g *Gemini) Analyze(ctx context.Context, jpegData []byte) ([]ParsedItem, error) {
	// ImageData takes the format suffix, not the MIME type
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("jpeg", jpegData), genai.Text(extractionPrompt))
	if err != nil {
		return nil, fmt.Errorf("%w: generating content: %w", ErrAnalysisService, err)
	}
	return parseItemsJSON(candidateText(resp))
}

// candidateText joins the text parts of the first candidate. Blocked or empty
// responses yield "", which parseItemsJSON reports as a service error.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
