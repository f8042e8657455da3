package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// NewsAPIConfig holds configuration for the NewsAPI fetch source.
type NewsAPIConfig struct {
	APIKey      string `yaml:"api_key"`
	Endpoint    string `yaml:"endpoint"`
	Query       string `yaml:"query"`
	PageSize    int    `yaml:"page_size"`
	MaxPages    int    `yaml:"max_pages"`
	MaxAttempts int    `yaml:"max_attempts"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

const (
	defaultNewsAPIEndpoint = "https://newsapi.org/v2/everything"
	defaultNewsAPIQuery    = "technology OR politics OR economy"

	baseBackoff = time.Second
	maxBackoff  = time.Minute
)

// NewsAPI is the fetch source for newsapi.org.
type NewsAPI struct {
	config      NewsAPIConfig
	http        *http.Client
	logger      *slog.Logger
	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewNewsAPI creates a NewsAPI source.
func NewNewsAPI(cfg NewsAPIConfig, logger *slog.Logger) (*NewsAPI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("newsapi api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultNewsAPIEndpoint
	}
	if cfg.Query == "" {
		cfg.Query = defaultNewsAPIQuery
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NewsAPI{
		config:      cfg,
		http:        &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		logger:      logger,
		backoffBase: baseBackoff,
		backoffCap:  maxBackoff,
	}, nil
}

// Name implements Source.
func (n *NewsAPI) Name() string { return "newsapi" }

// FetchArticles pulls up to MaxPages pages and normalizes every article
// into an envelope.
func (n *NewsAPI) FetchArticles(ctx context.Context) ([]Envelope, error) {
	var envelopes []Envelope
	for page := 1; page <= n.config.MaxPages; page++ {
		n.logger.Info("fetching page", "source", n.Name(), "page", page)
		pageEnvelopes, err := n.fetchPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}
		envelopes = append(envelopes, pageEnvelopes...)
	}
	n.logger.Info("fetch complete", "source", n.Name(), "articles", len(envelopes))
	return envelopes, nil
}

// fetchPage retrieves one page, retrying rate-limit responses with
// capped exponential backoff up to MaxAttempts. Other failures abort
// immediately.
func (n *NewsAPI) fetchPage(ctx context.Context, page int) ([]Envelope, error) {
	var lastErr error
	for attempt := 1; attempt <= n.config.MaxAttempts; attempt++ {
		envelopes, err := n.requestPage(ctx, page)
		if err == nil {
			return envelopes, nil
		}

		rateErr, ok := err.(*RateLimitError)
		if !ok {
			return nil, err
		}
		lastErr = err

		if attempt == n.config.MaxAttempts {
			break
		}

		backoff := n.backoffBase << (attempt - 1)
		if backoff > n.backoffCap {
			backoff = n.backoffCap
		}
		if rateErr.RetryAfter > 0 {
			backoff = rateErr.RetryAfter
		}
		n.logger.Warn("rate limited, backing off",
			"source", n.Name(), "page", page, "attempt", attempt, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("giving up after %d rate-limited attempts: %w", n.config.MaxAttempts, lastErr)
}

// newsAPIResponse mirrors the provider's wire format.
type newsAPIResponse struct {
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

func (n *NewsAPI) requestPage(ctx context.Context, page int) ([]Envelope, error) {
	params := url.Values{}
	params.Set("q", n.config.Query)
	params.Set("pageSize", strconv.Itoa(n.config.PageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("apiKey", n.config.APIKey)
	params.Set("language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		n.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp newsAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}

	envelopes := make([]Envelope, 0, len(apiResp.Articles))
	for _, a := range apiResp.Articles {
		envelopes = append(envelopes, n.normalize(a))
	}
	return envelopes, nil
}

// normalize maps a NewsAPI article into the internal envelope schema.
// Content falls back to the description when the provider truncates it.
func (n *NewsAPI) normalize(a newsAPIArticle) Envelope {
	body := a.Content
	if body == "" {
		body = a.Description
	}
	return Envelope{
		Title:       a.Title,
		Body:        body,
		URL:         a.URL,
		PublishedAt: a.PublishedAt,
		SourceName:  a.Source.Name,
	}
}
