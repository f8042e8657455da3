// Package consume drains the work queue and idempotently persists
// sources and articles.
package consume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/crosscheck-news/crosscheck/internal/feed"
	"github.com/crosscheck-news/crosscheck/internal/queue"
	"github.com/crosscheck-news/crosscheck/internal/store"
)

const defaultDequeueTimeout = 5 * time.Second

// Config holds consumer configuration.
type Config struct {
	// Workers is the number of parallel consumer loops.
	Workers int `yaml:"workers"`
	// DequeueTimeoutSecs bounds each blocking dequeue; the timeout alone
	// governs idle polling cadence.
	DequeueTimeoutSecs int `yaml:"dequeue_timeout_secs"`
}

// Consumer runs one or more worker loops over the shared queue and
// store. Correctness under concurrency rests entirely on the store's
// uniqueness constraints; workers hold no shared state.
type Consumer struct {
	store          store.Store
	queue          *queue.Queue
	logger         *slog.Logger
	workers        int
	dequeueTimeout time.Duration
}

// New creates a consumer over explicit queue and store handles.
func New(st store.Store, q *queue.Queue, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	timeout := defaultDequeueTimeout
	if cfg.DequeueTimeoutSecs > 0 {
		timeout = time.Duration(cfg.DequeueTimeoutSecs) * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		store:          st,
		queue:          q,
		logger:         logger,
		workers:        cfg.Workers,
		dequeueTimeout: timeout,
	}
}

// Run starts the worker loops and blocks until ctx is canceled and
// every worker has finished its in-flight envelope.
func (c *Consumer) Run(ctx context.Context) error {
	pool, err := ants.NewPool(c.workers)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		worker := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			c.workerLoop(ctx, worker)
		}); err != nil {
			wg.Done()
			return fmt.Errorf("submitting worker %d: %w", worker, err)
		}
	}

	c.logger.Info("consumer started", "workers", c.workers)
	wg.Wait()
	c.logger.Info("consumer stopped")
	return nil
}

// workerLoop dequeues and processes envelopes until ctx is canceled.
// A shutdown request lets the current envelope finish; per-item failures
// are logged and never halt the loop.
func (c *Consumer) workerLoop(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := c.queue.Dequeue(ctx, true, c.dequeueTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("dequeue failed", "worker", worker, "err", err)
			continue
		}

		// The envelope is already off the queue; finish storing it even
		// if shutdown was requested mid-flight.
		if err := c.ProcessEnvelope(context.WithoutCancel(ctx), payload); err != nil {
			c.logger.Error("dropping envelope", "worker", worker, "err", err)
		}
	}
}

// ProcessEnvelope validates one envelope and idempotently persists its
// source and article.
func (c *Consumer) ProcessEnvelope(ctx context.Context, payload []byte) error {
	env, err := feed.UnmarshalEnvelope(payload)
	if err != nil {
		return err
	}
	if env.URL == "" {
		return fmt.Errorf("envelope url is missing")
	}
	if env.Title == "" {
		return fmt.Errorf("envelope title is missing (url %s)", env.URL)
	}

	sourceName := env.SourceName
	if sourceName == "" {
		sourceName = "Unknown Source"
	}

	publishedAt, err := feed.ParsePublishedAt(env.PublishedAt)
	if err != nil {
		return fmt.Errorf("envelope %s: %w", env.URL, err)
	}

	src, err := c.store.UpsertSource(ctx, sourceName, "")
	if err != nil {
		return fmt.Errorf("resolving source %q: %w", sourceName, err)
	}

	id, created, err := c.store.InsertArticle(ctx, &store.Article{
		Title:       env.Title,
		Body:        env.Body,
		URL:         env.URL,
		PublishedAt: publishedAt,
		SourceID:    src.ID,
	})
	if err != nil {
		return fmt.Errorf("storing article %q: %w", env.URL, err)
	}

	if created {
		c.logger.Info("stored article", "id", id, "url", env.URL, "source", sourceName)
	} else {
		c.logger.Info("article already stored, skipping", "id", id, "url", env.URL)
	}
	return nil
}
