package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func embeddingsHandler(vectors map[int][]float32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		json.NewDecoder(r.Body).Decode(&req)

		resp := response{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vectors[i], Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestEmbedBatch(t *testing.T) {
	vectors := map[int][]float32{
		0: {0.1, 0.2},
		1: {0.3, 0.4},
	}
	server := httptest.NewServer(embeddingsHandler(vectors))
	defer server.Close()

	c, err := NewClient(Config{Endpoint: server.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	got, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(got))
	}
	if got[0][0] != 0.1 || got[1][0] != 0.3 {
		t.Errorf("embeddings not in input order: %v", got)
	}
}

func TestEmbedBatchReordersByIndex(t *testing.T) {
	// Server returns results in reverse order; the client must reassemble
	// them by index.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[2],"index":1},{"embedding":[1],"index":0}]}`)
	}))
	defer server.Close()

	c, _ := NewClient(Config{Endpoint: server.URL, Model: "test-model"})
	got, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Errorf("expected index-ordered results, got %v", got)
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c, _ := NewClient(Config{Endpoint: "http://unused.example", Model: "m"})
	got, err := c.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected nil error for empty input, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result for empty input, got %v", got)
	}
}

func TestEmbedBatchRetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[{"embedding":[1],"index":0}]}`)
	}))
	defer server.Close()

	c, _ := NewClient(Config{Endpoint: server.URL, Model: "m", MaxRetries: 2})
	got, err := c.EmbedBatch(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 embedding, got %d", len(got))
	}
}

func TestEmbedBatchBoundedRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, _ := NewClient(Config{Endpoint: server.URL, Model: "m", MaxRetries: 2})
	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", attempts)
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[1],"index":0}]}`)
	}))
	defer server.Close()

	c, _ := NewClient(Config{Endpoint: server.URL, Model: "m"})
	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error on embedding count mismatch")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Endpoint: "http://e", Model: "m"}, false},
		{"missing endpoint", Config{Model: "m"}, true},
		{"missing model", Config{Endpoint: "http://e"}, true},
		{"negative retries", Config{Endpoint: "http://e", Model: "m", MaxRetries: -1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
