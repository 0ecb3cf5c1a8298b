package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/store"
	"golang.org/x/time/rate"
)

// Searcher resolves one ISBN. *lookup.Orchestrator satisfies it.
type Searcher interface {
	SearchSingle(ctx context.Context, isbn string) (models.LookupOutcome, error)
}

// EngineOptions tunes an Engine. Zero values disable the feature.
type EngineOptions struct {
	ItemDelay time.Duration
	Metrics   *Metrics
	Logger    *slog.Logger
	// OnResult is called after each result has been stored and counted.
	OnResult func(models.SearchResultRecord)
}

// Engine drives bulk sessions through pending -> in_progress -> completed|failed.
type Engine struct {
	searcher  Searcher
	store     store.Store
	itemDelay time.Duration
	metrics   *Metrics
	logger    *slog.Logger
	onResult  func(models.SearchResultRecord)
}

// NewEngine builds an engine that records results in st.
func NewEngine(searcher Searcher, st store.Store, opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		searcher:  searcher,
		store:     st,
		itemDelay: opts.ItemDelay,
		metrics:   opts.Metrics,
		logger:    logger,
		onResult:  opts.OnResult,
	}
}

// RunBulk processes isbns for the session with public id sessionID and blocks until done.
// Per-item lookup failures become result records. Store failures, cancellation and
// panics end the job: the session is marked failed and the cause is returned.
func (e *Engine) RunBulk(ctx context.Context, sessionID string, isbns []string) (err error) {
	session, err := e.store.GetSessionByPublicID(ctx, sessionID)
	if err != nil {
		e.logger.Error("bulk session unavailable", slog.String("session", sessionID), slog.Any("error", err))
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	start := time.Now()
	e.metrics.jobStarted()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bulk job panicked: %v", r)
		}
		if err != nil {
			e.markFailed(ctx, session, err)
			e.metrics.jobFinished(models.StatusFailed)
			return
		}
		e.metrics.jobFinished(models.StatusCompleted)
		e.logger.Info("bulk job completed",
			slog.String("session", sessionID),
			slog.Int("items", len(isbns)),
			slog.Duration("elapsed", time.Since(start)),
		)
	}()

	if len(isbns) > session.TotalItems {
		return fmt.Errorf("session %s expects %d items, got %d", sessionID, session.TotalItems, len(isbns))
	}

	started, err := e.store.UpdateSession(ctx, session.ID, models.StatusUpdate(models.StatusInProgress))
	if err != nil {
		return fmt.Errorf("start session %s: %w", sessionID, err)
	}

	var limiter *rate.Limiter
	if e.itemDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(e.itemDelay), 1)
	}

	processed, successful := started.ProcessedItems, started.SuccessfulItems
	for _, isbn := range isbns {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("pace bulk job: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := e.lookup(ctx, sessionID, isbn)
		if err != nil {
			return err
		}
		stored, err := e.store.AppendResult(ctx, rec)
		if err != nil {
			return fmt.Errorf("append result for %s: %w", isbn, err)
		}

		processed++
		if stored.Status == models.ResultFound {
			successful++
		}
		if _, err := e.store.UpdateSession(ctx, session.ID, models.CountersUpdate(processed, successful)); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}

		e.metrics.item(stored.Status)
		if e.onResult != nil {
			e.onResult(stored)
		}
		e.logger.Debug("bulk item processed",
			slog.String("session", sessionID),
			slog.String("isbn", isbn),
			slog.String("status", string(stored.Status)),
			slog.Int("processed", processed),
			slog.Int("total", session.TotalItems),
		)
	}

	if _, err := e.store.UpdateSession(ctx, session.ID, models.StatusUpdate(models.StatusCompleted)); err != nil {
		return fmt.Errorf("complete session %s: %w", sessionID, err)
	}
	return nil
}

// lookup turns one search into a result record. Only cancellation is returned as an error.
func (e *Engine) lookup(ctx context.Context, sessionID, isbn string) (rec models.SearchResultRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lookup panicked", slog.String("isbn", isbn), slog.Any("panic", r))
			rec, err = models.ErrorResult(sessionID, isbn, fmt.Errorf("lookup panicked: %v", r)), nil
		}
	}()

	outcome, err := e.searcher.SearchSingle(ctx, isbn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.SearchResultRecord{}, ctxErr
		}
		return models.ErrorResult(sessionID, isbn, err), nil
	}
	return models.ResultFromOutcome(sessionID, isbn, outcome), nil
}

func (e *Engine) markFailed(ctx context.Context, session models.SearchSession, cause error) {
	e.logger.Error("bulk job failed", slog.String("session", session.SessionID), slog.Any("error", cause))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := e.store.UpdateSession(ctx, session.ID, models.StatusUpdate(models.StatusFailed)); err != nil {
		e.logger.Warn("could not mark session failed", slog.String("session", session.SessionID), slog.Any("error", err))
	}
}

// Job is a bulk run executing in its own goroutine.
type Job struct {
	sessionID string
	done      chan struct{}
	err       error
}

// Start runs RunBulk in the background. ctx should outlive the request that started the job.
func (e *Engine) Start(ctx context.Context, sessionID string, isbns []string) *Job {
	job := &Job{sessionID: sessionID, done: make(chan struct{})}
	go func() {
		defer close(job.done)
		job.err = e.RunBulk(ctx, sessionID, isbns)
	}()
	return job
}

// SessionID returns the public session id of the job.
func (j *Job) SessionID() string { return j.sessionID }

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes and returns its error.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Err returns the job error once finished, nil while running.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}
