package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/isbn-finder/config"
	"github.com/aluiziolira/isbn-finder/lookup"
	"github.com/aluiziolira/isbn-finder/pipeline"
	"github.com/aluiziolira/isbn-finder/scraper"
	"github.com/aluiziolira/isbn-finder/search"
	"github.com/aluiziolira/isbn-finder/store"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "isbnfinder",
		Short: "Find book details by ISBN across online bookstores",
		Long: `isbnfinder looks an ISBN up in a prioritized list of bookstores and the
Google Books API and returns the first match.

It runs as an HTTP service with single and bulk search endpoints, or as a
command line tool for one-off and batch lookups.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (default ./isbnfinder.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newSearchCmd(opts),
		newBulkCmd(opts),
		newSitesCmd(opts),
	)
	return cmd
}

// loadConfig reads configuration and installs the default logger.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.Verbose = true
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the components shared by every command.
type app struct {
	cfg          *config.Config
	metrics      *scraper.Metrics
	bulkMetrics  *pipeline.Metrics
	orchestrator *lookup.Orchestrator
	store        store.Store
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	metrics := scraper.NewMetrics()

	fetcher, err := scraper.NewFetcher(cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("initialising fetcher: %w", err)
	}
	registry, err := scraper.BuildRegistry(cfg, fetcher)
	if err != nil {
		return nil, fmt.Errorf("building source registry: %w", err)
	}

	orchestrator := lookup.New(registry, lookup.Options{
		SourceTimeout: cfg.SourceTimeout,
		CacheSize:     cfg.CacheSize,
		CacheTTL:      cfg.CacheTTL,
		Metrics:       metrics,
		Logger:        slog.Default(),
	})

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	slog.Debug("application ready",
		slog.Any("sources", registry.Names()),
		slog.String("store", cfg.Store.Backend),
	)
	return &app{
		cfg:          cfg,
		metrics:      metrics,
		bulkMetrics:  pipeline.NewMetrics(metrics.Registry),
		orchestrator: orchestrator,
		store:        st,
	}, nil
}

func (a *app) service() *search.Service {
	return search.NewService(a.orchestrator, a.store, search.Options{
		ItemDelay: a.cfg.BulkItemDelay,
		Metrics:   a.bulkMetrics,
		Logger:    slog.Default(),
	})
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("close store", slog.Any("error", err))
	}
}
