package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ollamaSystemPrompt = "You are an expert at reading grocery receipts. You must carefully read all text in images and extract accurate information."

// Ollama implements the Scanner interface against a local Ollama server.
// Vision models that read receipts well: llava:1.6, qwen2-vl:7b, llava-phi3.
type Ollama struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllama creates a new Ollama Scanner instance
func NewOllama(baseURL string, modelName string, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	// Local vision models are slow on CPU
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Ollama{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/api/chat",
		model:    modelName,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaOptions pins sampling so repeated scans of a receipt agree.
// NumPredict matches the OpenAI max_tokens budget.
type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *Ollama) newRequest(jpegData []byte) ollamaChatRequest {
	return ollamaChatRequest{
		Model: o.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: ollamaSystemPrompt},
			{
				Role:    "user",
				Content: extractionPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(jpegData)},
			},
		},
		Options: ollamaOptions{Temperature: 0, NumPredict: 500},
	}
}

// Analyze sends the receipt to a local vision model and parses the item list
func (o *Ollama) Analyze(ctx context.Context, jpegData []byte) ([]ParsedItem, error) {
	payload, err := json.Marshal(o.newRequest(jpegData))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling ollama: %w", ErrAnalysisService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", ErrAnalysisService, resp.StatusCode, bytes.TrimSpace(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama response: %w", ErrAnalysisService, err)
	}

	return parseItemsJSON(chatResp.Message.Content)
}

// Close is a no-op; the HTTP client holds no resources
func (o *Ollama) Close() error {
	return nil
}
