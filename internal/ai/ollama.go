// Package ai talks to the external embedding/scoring dependency. Calls are
// slow, fallible, and rate-limited; callers must acquire from the shared
// rate limiter before invoking anything here.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Embedder is the interface the scoring pipeline depends on.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ErrUpstream marks a failure that survived the retry budget. The pipeline
// degrades the semantic dimension instead of failing the request.
var ErrUpstream = errors.New("embedding upstream failed")

type OllamaClient struct {
	BaseURL     string
	EmbedModel  string
	GenModel    string
	MaxAttempts uint64

	http *http.Client
}

func NewOllamaClient(baseURL, embedModel, genModel string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	if genModel == "" {
		genModel = "llama3.2:latest"
	}
	return &OllamaClient{
		BaseURL:     baseURL,
		EmbedModel:  embedModel,
		GenModel:    genModel,
		MaxAttempts: 3,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// GenerateEmbedding returns the embedding vector for text, retrying with
// exponential backoff up to the configured attempt ceiling.
func (c *OllamaClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := c.withRetry(ctx, func() error {
		parsed, err := postJSON[embeddingResponse](ctx, c.http, c.BaseURL+"/api/embeddings", embeddingRequest{
			Model:  c.EmbedModel,
			Prompt: text,
		})
		if err != nil {
			return err
		}
		vec = parsed.Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return vec, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// GenerateCompletion runs a single non-streaming completion, retrying on
// transient failures.
func (c *OllamaClient) GenerateCompletion(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	reqBody := generateRequest{
		Model:  c.GenModel,
		Prompt: prompt,
		Stream: false,
	}
	if jsonMode {
		reqBody.Format = "json"
	}

	var out string
	err := c.withRetry(ctx, func() error {
		parsed, err := postJSON[generateResponse](ctx, c.http, c.BaseURL+"/api/generate", reqBody)
		if err != nil {
			return err
		}
		out = parsed.Response
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return out, nil
}

func (c *OllamaClient) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	attempts := c.MaxAttempts
	if attempts == 0 {
		attempts = 3
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, attempts-1), ctx))
}

func postJSON[T any](ctx context.Context, client *http.Client, url string, body any) (*T, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama returned status: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var parsed T
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &parsed, nil
}
