package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/crosscheck-news/crosscheck/internal/cluster"
	"github.com/crosscheck-news/crosscheck/internal/config"
	"github.com/crosscheck-news/crosscheck/internal/consume"
	"github.com/crosscheck-news/crosscheck/internal/embed"
	"github.com/crosscheck-news/crosscheck/internal/feed"
	"github.com/crosscheck-news/crosscheck/internal/queue"
	"github.com/crosscheck-news/crosscheck/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "crosscheck",
		Usage: "News ingestion and cross-source fact clustering pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "fetch",
				Usage:  "Run every enabled fetch source once and enqueue the articles",
				Action: fetchCommand,
			},
			{
				Name:   "consume",
				Usage:  "Drain the queue into the article store until interrupted",
				Action: consumeCommand,
			},
			{
				Name:   "cluster",
				Usage:  "Group unclustered facts into cross-source clusters",
				Action: clusterCommand,
			},
			{
				Name:   "stats",
				Usage:  "Print store and queue counts",
				Action: statsCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func fetchCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	registry := feed.NewRegistry(slog.Default())
	registry.Register("newsapi", func() (feed.Source, error) {
		return feed.NewNewsAPI(cfg.NewsAPI, slog.Default())
	})

	sources, err := registry.Enabled(cfg.EnabledSources)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no fetch sources enabled")
	}

	q, err := queue.Open(queue.Config{Path: cfg.QueuePath})
	if err != nil {
		return err
	}
	defer q.Close()

	producer := feed.NewProducer(q, sources, slog.Default())
	report, err := producer.Run(c.Context)
	if err != nil {
		return err
	}

	fmt.Printf("enqueued %d articles\n", report.Enqueued)
	if len(report.FailedSources) > 0 {
		return fmt.Errorf("failed sources: %s", strings.Join(report.FailedSources, ", "))
	}
	return nil
}

func consumeCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	st, err := store.NewStore(store.Config{DBPath: cfg.DBPath})
	if err != nil {
		return err
	}
	defer st.Close()

	q, err := queue.Open(queue.Config{Path: cfg.QueuePath})
	if err != nil {
		return err
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := consume.New(st, q, cfg.Consumer, slog.Default())
	return consumer.Run(ctx)
}

func clusterCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	st, err := store.NewStore(store.Config{DBPath: cfg.DBPath})
	if err != nil {
		return err
	}
	defer st.Close()

	embedder, err := embed.NewClient(cfg.Embed)
	if err != nil {
		return err
	}

	engine := cluster.NewEngine(st, embedder, cfg.Cluster, slog.Default())
	result, err := engine.Run(c.Context)
	if errors.Is(err, store.ErrLeaseHeld) {
		return fmt.Errorf("another clustering run is in progress")
	}
	if err != nil {
		return err
	}

	fmt.Printf("clustered %d facts into %d clusters (%d noise)\n",
		result.Facts, result.Clusters, result.Noise)
	return nil
}

func statsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	st, err := store.NewStore(store.Config{DBPath: cfg.DBPath})
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return err
	}

	q, err := queue.Open(queue.Config{Path: cfg.QueuePath})
	if err != nil {
		return err
	}
	defer q.Close()
	queued, err := q.Len()
	if err != nil {
		return err
	}

	fmt.Printf("sources:    %d\n", stats.Sources)
	fmt.Printf("articles:   %d\n", stats.Articles)
	fmt.Printf("facts:      %d\n", stats.Facts)
	fmt.Printf("alignments: %d\n", stats.Alignments)
	fmt.Printf("queued:     %d\n", queued)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
