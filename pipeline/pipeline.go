// Package pipeline runs bulk ISBN jobs and streams their results to export writers.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// ResultWriter is an export destination for result records.
type ResultWriter interface {
	Write(records []models.SearchResultRecord) error
	Close() error
	Validate() error
}

// Pipeline buffers result records and writes them in batches from one goroutine,
// so the output keeps the order records were submitted in.
type Pipeline struct {
	writer    ResultWriter
	recordCh  chan models.SearchResultRecord
	batchSize int
	flushWait time.Duration

	wg sync.WaitGroup

	seen   map[string]struct{}
	seenMu sync.Mutex

	stats stats

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	startOnce    sync.Once
	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a modest in-memory buffer.
func NewPipeline(writer ResultWriter) *Pipeline {
	return &Pipeline{
		writer:    writer,
		recordCh:  make(chan models.SearchResultRecord, 256),
		batchSize: 32,
		flushWait: time.Second,
		seen:      make(map[string]struct{}),
		stats:     stats{validation: make(map[string]int)},
		shutdown:  make(chan struct{}),
	}
}

// Start launches the writer goroutine. Calling it more than once has no effect.
func (p *Pipeline) Start() {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}

	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.worker()
	})
}

// Process enqueues records for writing.
func (p *Pipeline) Process(records ...models.SearchResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, rec := range records {
		if err := p.enqueue(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the buffer, waits for the writer and prevents more submissions.
// The underlying ResultWriter is left open.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.recordCh)
	})

	p.wg.Wait()
	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.stats.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				slog.Info("export progress",
					slog.Int64("written", snapshot["written_results"].(int64)),
					slog.Any("rejected", snapshot["validation_errors"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]models.SearchResultRecord, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		p.stats.addWritten(len(batch))
		batch = batch[:0]
		return nil
	}

	ticker := time.NewTicker(p.flushWait)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-p.recordCh:
			if !ok {
				if err := flush(); err != nil {
					p.setErr(fmt.Errorf("write batch: %w", err))
				}
				return
			}
			if !p.accept(rec) {
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				if err := flush(); err != nil {
					p.setErr(fmt.Errorf("write batch: %w", err))
					return
				}
			}
		case <-ticker.C:
			// bulk jobs are paced, so flush partial batches instead of holding them
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}
}

func (p *Pipeline) accept(rec models.SearchResultRecord) bool {
	if rec.ISBN == "" || rec.Status == "" {
		p.stats.addValidation("invalid_record")
		return false
	}
	if rec.ID == "" {
		return true
	}

	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	if _, ok := p.seen[rec.ID]; ok {
		p.stats.addValidation("duplicate_id")
		return false
	}
	p.seen[rec.ID] = struct{}{}
	return true
}

func (p *Pipeline) enqueue(rec models.SearchResultRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.recordCh <- rec:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type stats struct {
	mu         sync.Mutex
	written    int64
	validation map[string]int
}

func (s *stats) addWritten(n int) {
	s.mu.Lock()
	s.written += int64(n)
	s.mu.Unlock()
}

func (s *stats) addValidation(kind string) {
	s.mu.Lock()
	s.validation[kind]++
	s.mu.Unlock()
}

func (s *stats) snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	copyValidation := make(map[string]int, len(s.validation))
	for k, v := range s.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"written_results":   s.written,
		"validation_errors": copyValidation,
	}
}
