package feed

import (
	"context"
	"log/slog"

	"github.com/crosscheck-news/crosscheck/internal/queue"
)

// Producer runs every enabled fetch source once and enqueues the
// resulting envelopes. A failing source is recorded and skipped so one
// bad provider never aborts the others.
type Producer struct {
	queue   *queue.Queue
	sources []Source
	logger  *slog.Logger
}

// RunReport summarizes one producer run.
type RunReport struct {
	Enqueued      int
	FailedSources []string
}

// NewProducer creates a producer over an explicit queue handle.
func NewProducer(q *queue.Queue, sources []Source, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{queue: q, sources: sources, logger: logger}
}

// Run executes every source and enqueues its envelopes. Partial failure
// is visible in the report; the run itself always completes.
func (p *Producer) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{}

	for _, src := range p.sources {
		p.logger.Info("running fetch source", "source", src.Name())

		envelopes, err := src.FetchArticles(ctx)
		if err != nil {
			p.logger.Error("fetch source failed, skipping",
				"source", src.Name(), "err", err)
			report.FailedSources = append(report.FailedSources, src.Name())
			continue
		}

		enqueued := 0
		for _, env := range envelopes {
			payload, err := env.Marshal()
			if err != nil {
				p.logger.Error("dropping unencodable envelope",
					"source", src.Name(), "url", env.URL, "err", err)
				continue
			}
			if err := p.queue.Enqueue(payload); err != nil {
				p.logger.Error("enqueue failed",
					"source", src.Name(), "url", env.URL, "err", err)
				report.FailedSources = append(report.FailedSources, src.Name())
				break
			}
			enqueued++
		}

		report.Enqueued += enqueued
		p.logger.Info("source complete",
			"source", src.Name(), "fetched", len(envelopes), "enqueued", enqueued)
	}

	p.logger.Info("producer run complete",
		"enqueued", report.Enqueued, "failed_sources", len(report.FailedSources))
	return report, nil
}
