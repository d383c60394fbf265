package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OpenAIEmbedder implements Embedder over OpenAI's embeddings API. It
// returns []float32 directly rather than a pgvector.Vector, since
// Index.Upsert/Search already accept raw slices.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	httpClient *http.Client
	dimensions int
}

// NewOpenAIEmbedder builds an embedder for the given model. dimensions
// should match the model's native output size (1536 for
// text-embedding-3-small, 3072 for text-embedding-3-large).
func NewOpenAIEmbedder(apiKey, model string, dimensions int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		dimensions: dimensions,
	}
}

// Dimensions returns the embedding vector size.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates a single embedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Input: []string{text}, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("catalog: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("catalog: create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: send embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("catalog: read embed response: %w", err)
	}

	var result openAIEmbedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal embed response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("catalog: openai embeddings error: %s: %s", result.Error.Type, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: unexpected embed status %d: %s", resp.StatusCode, string(body))
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("catalog: empty embed response")
	}

	return result.Data[0].Embedding, nil
}

// NoopEmbedder returns zero vectors of a fixed size. Useful for local
// development without an embeddings API key configured; RelevantTables
// still runs, it just can't distinguish tables by similarity.
type NoopEmbedder struct {
	dimensions int
}

// NewNoopEmbedder builds an embedder that always returns a zero vector.
func NewNoopEmbedder(dimensions int) *NoopEmbedder {
	return &NoopEmbedder{dimensions: dimensions}
}

func (e *NoopEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, e.dimensions), nil
}
