// Package feed fetches articles from external providers and normalizes
// them into envelopes for the work queue.
package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the normalized article record passed through the work
// queue. PublishedAt stays a raw string here; the consumer treats a
// missing or malformed timestamp as a per-item validation failure.
type Envelope struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	SourceName  string `json:"source_name"`
}

// Marshal encodes the envelope for the queue.
func (e Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}
	return b, nil
}

// UnmarshalEnvelope decodes a queue payload.
func UnmarshalEnvelope(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	return e, nil
}

// publishedAtLayouts are the timestamp formats accepted from providers,
// most specific first.
var publishedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParsePublishedAt parses an envelope timestamp. An empty or
// unrecognized value is an error; published_at is required downstream.
func ParsePublishedAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("published_at is missing")
	}
	for _, layout := range publishedAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported published_at format %q", raw)
}
