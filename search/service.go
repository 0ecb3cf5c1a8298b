// Package search composes lookups, persistence and bulk jobs into the
// operations exposed by the HTTP API and the CLI.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/parser"
	"github.com/aluiziolira/isbn-finder/pipeline"
	"github.com/aluiziolira/isbn-finder/store"
	"github.com/google/uuid"
)

var (
	// ErrNoResults is returned by Export when a session has nothing to export.
	ErrNoResults = errors.New("no results found for this session")
	// ErrUnknownFormat is returned by Export for formats other than csv, json and xlsx.
	ErrUnknownFormat = errors.New("export format must be csv, json or xlsx")
	// ErrShuttingDown is returned by StartBulk once Shutdown has been called.
	ErrShuttingDown = errors.New("service is shutting down")
)

// Lookup resolves ISBNs and reports source health. *lookup.Orchestrator satisfies it.
type Lookup interface {
	SearchSingle(ctx context.Context, isbn string) (models.LookupOutcome, error)
	SiteStatus(ctx context.Context) []models.SiteStatus
}

// Options tunes a Service.
type Options struct {
	ItemDelay time.Duration
	Metrics   *pipeline.Metrics
	Logger    *slog.Logger
}

// SingleResult is the answer to a single ISBN search.
type SingleResult struct {
	SessionID string
	Found     bool
	Result    models.SearchResultRecord
}

// BulkStarted describes a bulk job that has been accepted.
type BulkStarted struct {
	SessionID    string
	TotalItems   int
	ValidISBNs   int
	InvalidISBNs int
	Invalid      []string
}

// Service owns the detached bulk jobs and the session store.
type Service struct {
	lookup Lookup
	store  store.Store
	engine *pipeline.Engine
	logger *slog.Logger
	newID  func() string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	jobs    map[string]*pipeline.Job
	wg      sync.WaitGroup
}

// NewService builds a service. Bulk jobs run on a context owned by the
// service so they survive the request that started them.
func NewService(lk Lookup, st store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		lookup: lk,
		store:  st,
		engine: pipeline.NewEngine(lk, st, pipeline.EngineOptions{
			ItemDelay: opts.ItemDelay,
			Metrics:   opts.Metrics,
			Logger:    logger,
		}),
		logger: logger,
		newID:  uuid.NewString,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*pipeline.Job),
	}
}

// SearchSingle validates rawISBN, looks it up and records the outcome in a
// single-item session.
func (s *Service) SearchSingle(ctx context.Context, rawISBN string) (SingleResult, error) {
	isbn, err := parser.NormalizeISBN(rawISBN)
	if err != nil {
		return SingleResult{}, err
	}

	session, err := s.store.CreateSession(ctx, models.NewSession{
		SessionID:  s.newID(),
		SearchType: models.SearchTypeSingle,
		Status:     models.StatusInProgress,
		TotalItems: 1,
	})
	if err != nil {
		return SingleResult{}, fmt.Errorf("create session: %w", err)
	}

	outcome, err := s.lookup.SearchSingle(ctx, isbn)
	if err != nil {
		s.fail(ctx, session, err)
		return SingleResult{}, fmt.Errorf("search %s: %w", isbn, err)
	}

	stored, err := s.store.AppendResult(ctx, models.ResultFromOutcome(session.SessionID, isbn, outcome))
	if err != nil {
		s.fail(ctx, session, err)
		return SingleResult{}, fmt.Errorf("store result: %w", err)
	}

	successful := 0
	if outcome.OK() {
		successful = 1
	}
	completed := models.StatusCompleted
	processed := 1
	if _, err := s.store.UpdateSession(ctx, session.ID, models.SessionUpdate{
		Status:          &completed,
		ProcessedItems:  &processed,
		SuccessfulItems: &successful,
	}); err != nil {
		s.fail(ctx, session, err)
		return SingleResult{}, fmt.Errorf("complete session: %w", err)
	}

	s.logger.Info("single search finished",
		slog.String("session", session.SessionID),
		slog.String("isbn", isbn),
		slog.Bool("found", outcome.OK()),
	)
	return SingleResult{SessionID: session.SessionID, Found: outcome.OK(), Result: stored}, nil
}

func (s *Service) fail(ctx context.Context, session models.SearchSession, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.store.UpdateSession(ctx, session.ID, models.StatusUpdate(models.StatusFailed)); err != nil {
		s.logger.Warn("could not mark session failed",
			slog.String("session", session.SessionID),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
	}
}

// StartBulk accepts a list of candidate ISBNs and processes the valid ones in
// the background. It returns as soon as the session exists.
func (s *Service) StartBulk(ctx context.Context, rawISBNs []string) (BulkStarted, error) {
	list, err := parser.ExtractISBNs(rawISBNs)
	if err != nil {
		return BulkStarted{}, err
	}

	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return BulkStarted{}, ErrShuttingDown
	}

	session, err := s.store.CreateSession(ctx, models.NewSession{
		SessionID:  s.newID(),
		SearchType: models.SearchTypeBulk,
		Status:     models.StatusPending,
		TotalItems: len(list.Valid),
	})
	if err != nil {
		return BulkStarted{}, fmt.Errorf("create session: %w", err)
	}

	if err := s.track(session.SessionID, list.Valid); err != nil {
		s.fail(ctx, session, err)
		return BulkStarted{}, err
	}

	s.logger.Info("bulk search accepted",
		slog.String("session", session.SessionID),
		slog.Int("valid", len(list.Valid)),
		slog.Int("invalid", len(list.Invalid)),
	)
	return BulkStarted{
		SessionID:    session.SessionID,
		TotalItems:   session.TotalItems,
		ValidISBNs:   len(list.Valid),
		InvalidISBNs: len(list.Invalid),
		Invalid:      list.Invalid,
	}, nil
}

func (s *Service) track(sessionID string, isbns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return ErrShuttingDown
	}

	job := s.engine.Start(s.ctx, sessionID, isbns)
	s.jobs[sessionID] = job
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := job.Wait(); err != nil {
			s.logger.Warn("bulk job ended with error", slog.String("session", sessionID), slog.Any("error", err))
		}
		s.mu.Lock()
		delete(s.jobs, sessionID)
		s.mu.Unlock()
	}()
	return nil
}

// StartBulkFromReader parses an uploaded sheet and starts a bulk job from its first column.
func (s *Service) StartBulkFromReader(ctx context.Context, r io.Reader) (BulkStarted, error) {
	values, err := parser.ReadISBNColumn(r)
	if err != nil {
		return BulkStarted{}, err
	}
	return s.StartBulk(ctx, values)
}

// Job returns the running job for sessionID, if any.
func (s *Service) Job(sessionID string) (*pipeline.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[sessionID]
	return job, ok
}

// Progress returns the progress view of a session.
func (s *Service) Progress(ctx context.Context, sessionID string) (models.Progress, error) {
	session, err := s.store.GetSessionByPublicID(ctx, sessionID)
	if err != nil {
		return models.Progress{}, err
	}
	return models.ProgressOf(session), nil
}

// Results lists the stored results of a session in insertion order.
func (s *Service) Results(ctx context.Context, sessionID string) ([]models.SearchResultRecord, error) {
	if _, err := s.store.GetSessionByPublicID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListResultsByPublicID(ctx, sessionID)
}

// Export writes the results of a session to w as csv, json lines or an xlsx workbook.
func (s *Service) Export(ctx context.Context, sessionID, format string, w io.Writer) error {
	switch format {
	case "", "csv", "json", "xlsx":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	results, err := s.Results(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return ErrNoResults
	}

	var writer pipeline.ResultWriter
	switch format {
	case "json":
		writer = pipeline.NewJSONStreamWriter(w)
	case "xlsx":
		xw, err := pipeline.NewXLSXStreamWriter(w)
		if err != nil {
			return fmt.Errorf("export %s: %w", sessionID, err)
		}
		writer = xw
	default:
		cw, err := pipeline.NewCSVStreamWriter(w)
		if err != nil {
			return fmt.Errorf("export %s: %w", sessionID, err)
		}
		writer = cw
	}
	if err := writer.Write(results); err != nil {
		return fmt.Errorf("export %s: %w", sessionID, err)
	}
	return writer.Close()
}

// SiteStatus probes every configured source.
func (s *Service) SiteStatus(ctx context.Context) []models.SiteStatus {
	return s.lookup.SiteStatus(ctx)
}

// Wait blocks until every detached bulk job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting bulk jobs and waits for running ones until ctx
// expires, after which they are cancelled and marked failed.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
