// Package lookup resolves an ISBN against the source registry in priority order.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/scraper"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// NotFoundMessage is reported when every source failed.
const NotFoundMessage = "ISBN not found at any source"

// Options tunes an Orchestrator. Zero values disable the feature.
type Options struct {
	SourceTimeout time.Duration
	CacheSize     int
	CacheTTL      time.Duration
	Metrics       *scraper.Metrics
	Logger        *slog.Logger
}

// Orchestrator walks the registry sequentially and stops at the first success.
type Orchestrator struct {
	registry *scraper.Registry
	timeout  time.Duration
	cache    *expirable.LRU[string, models.BookRecord]
	metrics  *scraper.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New builds an orchestrator over registry.
func New(registry *scraper.Registry, opts Options) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		timeout:  opts.SourceTimeout,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      time.Now,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if opts.CacheSize > 0 && opts.CacheTTL > 0 {
		o.cache = expirable.NewLRU[string, models.BookRecord](opts.CacheSize, nil, opts.CacheTTL)
	}
	return o
}

// SearchSingle returns the first successful outcome across the registry.
// Source errors and panics count as failures of that source only.
// The error is non-nil only when ctx ends before a result is found.
func (o *Orchestrator) SearchSingle(ctx context.Context, isbn string) (models.LookupOutcome, error) {
	if o.cache != nil {
		if rec, ok := o.cache.Get(isbn); ok {
			o.logger.Debug("lookup cache hit", slog.String("isbn", isbn), slog.String("site", rec.Site))
			return models.Found(rec), nil
		}
	}

	for _, entry := range o.registry.Entries() {
		if err := ctx.Err(); err != nil {
			return models.LookupOutcome{}, err
		}

		outcome, err := o.callSource(ctx, entry, isbn)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.LookupOutcome{}, ctxErr
			}
			o.metrics.IncLookup(entry.Name, "error")
			o.logger.Warn("source lookup failed",
				slog.String("source", entry.Name),
				slog.String("isbn", isbn),
				slog.Any("error", err),
			)
		case outcome.OK():
			o.metrics.IncLookup(entry.Name, "found")
			found := outcome.WithSite(entry.Name)
			if o.cache != nil {
				o.cache.Add(isbn, *found.Record)
			}
			return found, nil
		default:
			o.metrics.IncLookup(entry.Name, "not_found")
			o.logger.Debug("source has no match",
				slog.String("source", entry.Name),
				slog.String("isbn", isbn),
				slog.String("message", outcome.ErrorMessage),
			)
		}
	}

	return models.Failed(NotFoundMessage), nil
}

func (o *Orchestrator) callSource(ctx context.Context, entry scraper.Entry, isbn string) (outcome models.LookupOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source %s panicked: %v", entry.Name, r)
		}
	}()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return entry.Source.Search(ctx, isbn)
}

// SiteStatus probes every source concurrently and reports them in registry order.
func (o *Orchestrator) SiteStatus(ctx context.Context) []models.SiteStatus {
	entries := o.registry.Entries()
	statuses := make([]models.SiteStatus, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = o.probe(ctx, entry)
		}()
	}
	wg.Wait()
	return statuses
}

func (o *Orchestrator) probe(ctx context.Context, entry scraper.Entry) (status models.SiteStatus) {
	status.Name = entry.Name
	defer func() {
		status.LastChecked = o.now()
		if r := recover(); r != nil {
			status.Status = models.SiteError
			status.Error = fmt.Sprint(r)
			o.logger.Warn("site status check panicked", slog.String("source", entry.Name), slog.Any("panic", r))
		}
	}()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if entry.Source.CheckStatus(ctx) {
		status.Status = models.SiteActive
	} else {
		status.Status = models.SiteInactive
	}
	return status
}

// Sources returns the registry names in lookup order.
func (o *Orchestrator) Sources() []string {
	return o.registry.Names()
}
