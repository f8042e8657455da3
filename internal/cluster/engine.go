package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/crosscheck-news/crosscheck/internal/embed"
	"github.com/crosscheck-news/crosscheck/internal/store"
)

// leaseName guards the engine against overlapping runs: the run's
// transaction spans a read (the selector) and a write (the alignment
// batch), so two concurrent runs could double-cluster.
const leaseName = "clustering"

// Config holds clustering engine configuration.
type Config struct {
	// Epsilon is the cosine-distance neighborhood radius.
	Epsilon float64 `yaml:"epsilon"`
	// MinClusterSize is the minimum dense group size; never below 2.
	MinClusterSize int `yaml:"min_cluster_size"`
	// LeaseTTLSecs bounds how long a crashed run blocks the next one.
	LeaseTTLSecs int `yaml:"lease_ttl_secs"`
}

// RunResult summarizes one clustering run.
type RunResult struct {
	Facts    int
	Clusters int
	Noise    int
}

// Engine is the single-writer clustering batch job.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
	logger   *slog.Logger
	config   Config
	holder   string
}

// NewEngine creates a clustering engine over explicit store and
// embedder handles.
func NewEngine(st store.Store, embedder embed.Embedder, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 0.25
	}
	if cfg.MinClusterSize < 2 {
		cfg.MinClusterSize = 2
	}
	if cfg.LeaseTTLSecs <= 0 {
		cfg.LeaseTTLSecs = 600
	}
	if logger == nil {
		logger = slog.Default()
	}
	hostname, _ := os.Hostname()
	return &Engine{
		store:    st,
		embedder: embedder,
		logger:   logger,
		config:   cfg,
		holder:   fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
}

// Run clusters every currently unclustered fact. Any failure aborts the
// whole run with nothing persisted; the same facts stay unclustered and
// are retried on the next invocation. Returns store.ErrLeaseHeld when
// another run is in progress.
//
// Cluster labels are only comparable within a single run: previously
// aligned facts are never reconsidered, so a new fact cannot join a
// group formed by an earlier run.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	ttl := time.Duration(e.config.LeaseTTLSecs) * time.Second
	if err := e.store.AcquireLease(ctx, leaseName, e.holder, ttl); err != nil {
		return nil, err
	}
	defer func() {
		// Release even when the run was canceled.
		if err := e.store.ReleaseLease(context.WithoutCancel(ctx), leaseName, e.holder); err != nil {
			e.logger.Error("releasing clustering lease", "err", err)
		}
	}()

	facts, err := e.store.UnclusteredFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting unclustered facts: %w", err)
	}

	switch len(facts) {
	case 0:
		e.logger.Info("no unclustered facts")
		return &RunResult{}, nil
	case 1:
		// A single point cannot form a dense group; skip the embedding
		// call entirely.
		err := e.store.AddAlignments(ctx, []*store.Alignment{
			{FactID: facts[0].ID, ClusterID: store.ClusterNoise},
		})
		if err != nil {
			return nil, fmt.Errorf("persisting noise alignment: %w", err)
		}
		e.logger.Info("single fact assigned noise", "fact", facts[0].ID)
		return &RunResult{Facts: 1, Noise: 1}, nil
	}

	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Text
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d facts: %w", len(facts), err)
	}
	if len(vectors) != len(facts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d facts", len(vectors), len(facts))
	}

	labels := DBSCAN(vectors, e.config.Epsilon, e.config.MinClusterSize)

	result := &RunResult{Facts: len(facts)}
	alignments := make([]*store.Alignment, len(facts))
	groups := make(map[int64]struct{})
	for i, f := range facts {
		clusterID := store.ClusterNoise
		if labels[i] != Noise {
			clusterID = labels[i]
			groups[clusterID] = struct{}{}
		} else {
			result.Noise++
		}
		alignments[i] = &store.Alignment{FactID: f.ID, ClusterID: clusterID}
	}
	result.Clusters = len(groups)

	// One transaction for the whole batch: either every alignment for
	// this run commits or none do.
	if err := e.store.AddAlignments(ctx, alignments); err != nil {
		return nil, fmt.Errorf("persisting alignments: %w", err)
	}

	e.logger.Info("clustering run complete",
		"facts", result.Facts, "clusters", result.Clusters, "noise", result.Noise)
	return result, nil
}
