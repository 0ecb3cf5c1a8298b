package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/parser"
	"github.com/aluiziolira/isbn-finder/pipeline"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newBulkCmd(root *rootOptions) *cobra.Command {
	var (
		outputFile   string
		outputFormat string
		metricsAddr  string
	)

	cmd := &cobra.Command{
		Use:   "bulk <file>",
		Short: "Look up every ISBN in the first column of a CSV, text or xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output") {
				cfg.OutputFile = outputFile
			}
			if cmd.Flags().Changed("format") {
				cfg.OutputFormat = strings.ToLower(outputFormat)
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			list, err := readISBNFile(args[0])
			if err != nil {
				return err
			}
			if len(list.Invalid) > 0 {
				slog.Warn("skipping invalid ISBNs", slog.Int("count", len(list.Invalid)), slog.Any("values", list.Invalid))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				slog.Info("shutdown signal received, stopping after the current ISBN")
			}()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return runBulk(ctx, a, list)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "output/results.csv", "Output file path")
	cmd.Flags().StringVar(&outputFormat, "format", "csv", "Output format: csv, json, xlsx, or dual")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	return cmd
}

func readISBNFile(path string) (parser.ISBNList, error) {
	f, err := os.Open(path)
	if err != nil {
		return parser.ISBNList{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	values, err := parser.ReadISBNColumn(f)
	if err != nil {
		return parser.ISBNList{}, err
	}
	return parser.ExtractISBNs(values)
}

func runBulk(ctx context.Context, a *app, list parser.ISBNList) error {
	cfg := a.cfg

	session, err := a.store.CreateSession(ctx, models.NewSession{
		SessionID:  uuid.NewString(),
		SearchType: models.SearchTypeBulk,
		Status:     models.StatusPending,
		TotalItems: len(list.Valid),
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	slog.Info("starting bulk search",
		slog.String("session", session.SessionID),
		slog.Int("isbns", len(list.Valid)),
		slog.String("output", cfg.OutputFile),
	)

	writer, err := pipeline.NewFileWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(writer)
	p.Start()
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	tally := make(map[models.ResultStatus]int)
	engine := pipeline.NewEngine(a.orchestrator, a.store, pipeline.EngineOptions{
		ItemDelay: cfg.BulkItemDelay,
		Metrics:   a.bulkMetrics,
		Logger:    slog.Default(),
		OnResult: func(rec models.SearchResultRecord) {
			tally[rec.Status]++
			if err := p.Process(rec); err != nil {
				slog.Error("queue result for export", slog.String("isbn", rec.ISBN), slog.Any("error", err))
			}
		},
	})

	startTime := time.Now()
	runErr := engine.RunBulk(ctx, session.SessionID, list.Valid)

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}
	if runErr != nil {
		return fmt.Errorf("bulk search failed: %w", runErr)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	final, err := a.store.GetSessionByPublicID(context.WithoutCancel(ctx), session.SessionID)
	if err != nil {
		return err
	}
	printSummary(bulkSummary{
		Session:  final,
		Invalid:  len(list.Invalid),
		Tally:    tally,
		Duration: time.Since(startTime),
		Output:   cfg.OutputFile,
		Export:   p.GetMetrics(),
	})
	return nil
}

type bulkSummary struct {
	Session  models.SearchSession
	Invalid  int
	Tally    map[models.ResultStatus]int
	Duration time.Duration
	Output   string
	Export   map[string]interface{}
}

func printSummary(s bulkSummary) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Bulk search complete")

	fmt.Printf("  Session:       %s\n", s.Session.SessionID)
	fmt.Printf("  Status:        %s\n", s.Session.Status)
	fmt.Printf("  ISBNs:         %d (%d invalid skipped)\n", s.Session.TotalItems, s.Invalid)
	fmt.Printf("  Found:         %d\n", s.Tally[models.ResultFound])
	fmt.Printf("  Not found:     %d\n", s.Tally[models.ResultNotFound])
	fmt.Printf("  Errors:        %d\n", s.Tally[models.ResultError])
	fmt.Printf("  Progress:      %d%%\n", models.ProgressPercent(s.Session.ProcessedItems, s.Session.TotalItems))
	if written, ok := s.Export["written_results"].(int64); ok {
		fmt.Printf("  Exported:      %d\n", written)
	}
	if valErrors, ok := s.Export["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", s.Duration.Round(time.Millisecond))
	itemsPerSec := 0.0
	if s.Duration.Seconds() > 0 {
		itemsPerSec = float64(s.Session.ProcessedItems) / s.Duration.Seconds()
	}
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Printf("  Output file:   %s\n", s.Output)
	fmt.Println(separator)
}
