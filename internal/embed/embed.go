// Package embed consumes the external embedding provider over an
// OpenAI-compatible /v1/embeddings API (Ollama, OpenAI, or any custom
// endpoint speaking the same format).
//
// The provider contract is order-preserving: one fixed-length vector per
// input text, same length and order as the input slice.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Embedder generates embedding vectors from text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds embedding provider configuration.
type Config struct {
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	MaxRetries  int    `yaml:"max_retries"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("embed endpoint is required")
	}
	if c.Model == "" {
		return fmt.Errorf("embed model is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// request is an OpenAI-compatible embeddings request.
type request struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// response is an OpenAI-compatible embeddings response.
type response struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// HTTPError represents an HTTP error with retry context.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client implements Embedder with HTTP API calls.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a new embedding client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embed config: %w", err)
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 60
	}
	return &Client{
		config: cfg,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		},
	}, nil
}

// EmbedBatch generates embedding vectors for the given texts in a single
// API call, retrying with exponential backoff on failure. Rate-limit
// responses honor the server's Retry-After when present.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		embeddings, err := c.attemptEmbedBatch(ctx, texts)
		if err == nil {
			return embeddings, nil
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}

		// 1s, 2s, 4s, ...
		backoff := time.Duration(1<<attempt) * time.Second
		if httpErr, ok := err.(*HTTPError); ok && httpErr.StatusCode == http.StatusTooManyRequests {
			if httpErr.RetryAfter > 0 {
				backoff = httpErr.RetryAfter
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// attemptEmbedBatch makes a single embedding attempt.
func (c *Client) attemptEmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(request{Model: c.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var retryAfter time.Duration
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			RetryAfter: retryAfter,
		}
	}

	var embedResp response
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}

	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embedResp.Data))
	}

	// Results carry their input index; reassemble in input order.
	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	return embeddings, nil
}
