package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Source fetches raw articles from one external provider and normalizes
// them into envelopes.
type Source interface {
	Name() string
	FetchArticles(ctx context.Context) ([]Envelope, error)
}

// RateLimitError signals an HTTP 429-class response from a provider,
// distinct from other fetch failures so callers can apply bounded
// backoff instead of failing the fetch.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Registry holds the known fetch source constructors, selected by name
// through configuration.
type Registry struct {
	constructors map[string]func() (Source, error)
	logger       *slog.Logger
}

// NewRegistry creates an empty source registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		constructors: make(map[string]func() (Source, error)),
		logger:       logger,
	}
}

// Register adds a source constructor under a name.
func (r *Registry) Register(name string, constructor func() (Source, error)) {
	r.constructors[name] = constructor
}

// Enabled builds the sources named in the enabled list. Unknown names
// are logged and skipped rather than failing the whole run.
func (r *Registry) Enabled(names []string) ([]Source, error) {
	var sources []Source
	for _, name := range names {
		constructor, ok := r.constructors[name]
		if !ok {
			r.logger.Warn("unknown fetch source, skipping", "source", name)
			continue
		}
		src, err := constructor()
		if err != nil {
			return nil, fmt.Errorf("constructing source %q: %w", name, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}
