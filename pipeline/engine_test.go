package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   []string
	results map[string]func(ctx context.Context) (models.LookupOutcome, error)
}

func (f *fakeSearcher) SearchSingle(ctx context.Context, isbn string) (models.LookupOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, isbn)
	fn := f.results[isbn]
	f.mu.Unlock()
	if fn == nil {
		return models.Failed("ISBN not found at any source"), nil
	}
	return fn(ctx)
}

func foundBook(isbn string) func(context.Context) (models.LookupOutcome, error) {
	return func(context.Context) (models.LookupOutcome, error) {
		return models.Found(models.BookRecord{ISBN: isbn, Title: "Şema Terapi", Author: "Jeffrey Young", Site: "B"}), nil
	}
}

// recordingStore snapshots every session update so tests can check ordering.
type recordingStore struct {
	*store.MemoryStore
	mu        sync.Mutex
	snapshots []models.SearchSession
	failOn    string
}

func (r *recordingStore) UpdateSession(ctx context.Context, id string, u models.SessionUpdate) (models.SearchSession, error) {
	s, err := r.MemoryStore.UpdateSession(ctx, id, u)
	if err == nil {
		r.mu.Lock()
		r.snapshots = append(r.snapshots, s)
		r.mu.Unlock()
	}
	return s, err
}

func (r *recordingStore) AppendResult(ctx context.Context, rec models.SearchResultRecord) (models.SearchResultRecord, error) {
	if r.failOn != "" && rec.ISBN == r.failOn {
		return models.SearchResultRecord{}, errors.New("disk full")
	}
	return r.MemoryStore.AppendResult(ctx, rec)
}

func newBulkSession(t *testing.T, st store.Store, sessionID string, total int) models.SearchSession {
	t.Helper()
	s, err := st.CreateSession(context.Background(), models.NewSession{
		SessionID:  sessionID,
		SearchType: models.SearchTypeBulk,
		Status:     models.StatusPending,
		TotalItems: total,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func TestRunBulkTwoISBNs(t *testing.T) {
	ctx := context.Background()
	st := &recordingStore{MemoryStore: store.NewMemoryStore()}
	newBulkSession(t, st, "bulk-1", 2)

	searcher := &fakeSearcher{results: map[string]func(context.Context) (models.LookupOutcome, error){
		"9789756329627": foundBook("9789756329627"),
	}}
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	var seen []string
	engine := NewEngine(searcher, st, EngineOptions{
		Metrics:  metrics,
		OnResult: func(rec models.SearchResultRecord) { seen = append(seen, rec.ISBN) },
	})

	if err := engine.RunBulk(ctx, "bulk-1", []string{"9789756329627", "1111111111"}); err != nil {
		t.Fatalf("run bulk: %v", err)
	}

	session, err := st.GetSessionByPublicID(ctx, "bulk-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Status != models.StatusCompleted || session.ProcessedItems != 2 || session.SuccessfulItems != 1 {
		t.Fatalf("session = %+v", session)
	}

	results, err := st.ListResultsByPublicID(ctx, "bulk-1")
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ISBN != "9789756329627" || results[0].Status != models.ResultFound || results[0].Title != "Şema Terapi" {
		t.Fatalf("first result = %+v", results[0])
	}
	if results[1].ISBN != "1111111111" || results[1].Status != models.ResultNotFound || results[1].ErrorMessage != "ISBN not found at any source" {
		t.Fatalf("second result = %+v", results[1])
	}
	if len(seen) != 2 || seen[0] != "9789756329627" || seen[1] != "1111111111" {
		t.Fatalf("OnResult order = %v", seen)
	}

	if got := testutil.ToFloat64(metrics.ItemsTotal.WithLabelValues("found")); got != 1 {
		t.Fatalf("found items = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.JobsTotal.WithLabelValues("completed")); got != 1 {
		t.Fatalf("completed jobs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.JobsRunning); got != 0 {
		t.Fatalf("running jobs = %v, want 0", got)
	}
}

func TestRunBulkProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	st := &recordingStore{MemoryStore: store.NewMemoryStore()}
	isbns := []string{"9789756329627", "1111111111", "2222222222", "9780306406157"}
	newBulkSession(t, st, "bulk-2", len(isbns))

	searcher := &fakeSearcher{results: map[string]func(context.Context) (models.LookupOutcome, error){
		"9789756329627": foundBook("9789756329627"),
		"9780306406157": foundBook("9780306406157"),
	}}
	if err := NewEngine(searcher, st, EngineOptions{}).RunBulk(ctx, "bulk-2", isbns); err != nil {
		t.Fatalf("run bulk: %v", err)
	}

	if len(st.snapshots) != len(isbns)+2 {
		t.Fatalf("updates = %d, want %d", len(st.snapshots), len(isbns)+2)
	}
	prev := st.snapshots[0]
	for i, snap := range st.snapshots[1:] {
		if snap.ProcessedItems < prev.ProcessedItems || snap.SuccessfulItems < prev.SuccessfulItems {
			t.Fatalf("update %d went backwards: %+v after %+v", i+1, snap, prev)
		}
		if snap.Status.Rank() < prev.Status.Rank() {
			t.Fatalf("status regressed at update %d: %s after %s", i+1, snap.Status, prev.Status)
		}
		if snap.SuccessfulItems > snap.ProcessedItems || snap.ProcessedItems > snap.TotalItems {
			t.Fatalf("counter bounds violated: %+v", snap)
		}
		prev = snap
	}
	if last := st.snapshots[len(st.snapshots)-1]; last.Status != models.StatusCompleted || last.SuccessfulItems != 2 {
		t.Fatalf("final = %+v", last)
	}
}

func TestRunBulkMissingSession(t *testing.T) {
	st := store.NewMemoryStore()
	searcher := &fakeSearcher{}

	err := NewEngine(searcher, st, EngineOptions{}).RunBulk(context.Background(), "nope", []string{"1111111111"})
	if !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if len(searcher.calls) != 0 {
		t.Fatalf("searcher should not be called")
	}
}

func TestRunBulkItemFailuresBecomeErrorRecords(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	newBulkSession(t, st, "bulk-3", 3)

	searcher := &fakeSearcher{results: map[string]func(context.Context) (models.LookupOutcome, error){
		"1111111111": func(context.Context) (models.LookupOutcome, error) {
			return models.LookupOutcome{}, errors.New("registry unavailable")
		},
		"2222222222": func(context.Context) (models.LookupOutcome, error) {
			panic("searcher blew up")
		},
		"9789756329627": foundBook("9789756329627"),
	}}

	if err := NewEngine(searcher, st, EngineOptions{}).RunBulk(ctx, "bulk-3", []string{"1111111111", "2222222222", "9789756329627"}); err != nil {
		t.Fatalf("run bulk: %v", err)
	}

	results, _ := st.ListResultsByPublicID(ctx, "bulk-3")
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Status != models.ResultError || results[0].ErrorMessage != "registry unavailable" {
		t.Fatalf("first = %+v", results[0])
	}
	if results[1].Status != models.ResultError || results[1].ErrorMessage != "lookup panicked: searcher blew up" {
		t.Fatalf("second = %+v", results[1])
	}
	if results[2].Status != models.ResultFound {
		t.Fatalf("third = %+v", results[2])
	}

	session, _ := st.GetSessionByPublicID(ctx, "bulk-3")
	if session.Status != models.StatusCompleted || session.ProcessedItems != 3 || session.SuccessfulItems != 1 {
		t.Fatalf("session = %+v", session)
	}
}

func TestRunBulkStoreFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	st := &recordingStore{MemoryStore: store.NewMemoryStore(), failOn: "2222222222"}
	newBulkSession(t, st, "bulk-4", 3)
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	err := NewEngine(&fakeSearcher{}, st, EngineOptions{Metrics: metrics}).RunBulk(ctx, "bulk-4", []string{"1111111111", "2222222222", "3333333333"})
	if err == nil {
		t.Fatalf("expected engine error")
	}

	session, _ := st.GetSessionByPublicID(ctx, "bulk-4")
	if session.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", session.Status)
	}
	if session.ProcessedItems != 1 {
		t.Fatalf("processed = %d, want 1", session.ProcessedItems)
	}
	if got := testutil.ToFloat64(metrics.JobsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed jobs = %v, want 1", got)
	}
}

func TestRunBulkTooManyItems(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	newBulkSession(t, st, "bulk-5", 1)

	if err := NewEngine(&fakeSearcher{}, st, EngineOptions{}).RunBulk(ctx, "bulk-5", []string{"1111111111", "2222222222"}); err == nil {
		t.Fatalf("expected error for more items than the session total")
	}
	session, _ := st.GetSessionByPublicID(ctx, "bulk-5")
	if session.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", session.Status)
	}
}

func TestStartCancelledJobFails(t *testing.T) {
	st := store.NewMemoryStore()
	newBulkSession(t, st, "bulk-6", 3)

	release := make(chan struct{})
	searcher := &fakeSearcher{results: map[string]func(context.Context) (models.LookupOutcome, error){
		"1111111111": func(ctx context.Context) (models.LookupOutcome, error) {
			close(release)
			<-ctx.Done()
			return models.LookupOutcome{}, ctx.Err()
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	job := NewEngine(searcher, st, EngineOptions{}).Start(ctx, "bulk-6", []string{"1111111111", "2222222222", "3333333333"})
	if job.SessionID() != "bulk-6" {
		t.Fatalf("session id = %q", job.SessionID())
	}

	<-release
	if job.Err() != nil {
		t.Fatalf("Err must be nil while running")
	}
	cancel()

	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not stop after cancellation")
	}
	if err := job.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	session, _ := st.GetSessionByPublicID(context.Background(), "bulk-6")
	if session.Status != models.StatusFailed || session.ProcessedItems != 0 {
		t.Fatalf("session = %+v", session)
	}
}

func TestRunBulkPacesItems(t *testing.T) {
	st := store.NewMemoryStore()
	newBulkSession(t, st, "bulk-7", 3)

	start := time.Now()
	err := NewEngine(&fakeSearcher{}, st, EngineOptions{ItemDelay: 30 * time.Millisecond}).
		RunBulk(context.Background(), "bulk-7", []string{"1111111111", "2222222222", "3333333333"})
	if err != nil {
		t.Fatalf("run bulk: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Fatalf("elapsed = %v, want pacing between items", elapsed)
	}
}
