package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/parser"
	"github.com/aluiziolira/isbn-finder/pipeline"
	"github.com/aluiziolira/isbn-finder/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeLookup struct {
	mu    sync.Mutex
	calls []string
	found map[string]models.BookRecord
	err   error
	block chan struct{}
}

func (f *fakeLookup) SearchSingle(ctx context.Context, isbn string) (models.LookupOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, isbn)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return models.LookupOutcome{}, ctx.Err()
		}
	}
	if f.err != nil {
		return models.LookupOutcome{}, f.err
	}
	if rec, ok := f.found[isbn]; ok {
		return models.Found(rec), nil
	}
	return models.Failed("ISBN not found at any source"), nil
}

func (f *fakeLookup) SiteStatus(context.Context) []models.SiteStatus {
	return []models.SiteStatus{{Name: "Babil", Status: models.SiteActive}, {Name: "D&R", Status: models.SiteInactive}}
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(t *testing.T, lk *fakeLookup) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := NewService(lk, st, Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, st
}

const schemaTherapy = "9789756329627"

func schemaTherapyBook() models.BookRecord {
	return models.BookRecord{ISBN: schemaTherapy, Title: "Şema Terapi", Author: "Jeffrey Young", Publisher: "Psikonet", Price: "350.00 TL", Site: "D&R"}
}

func TestSearchSingleFound(t *testing.T) {
	lk := &fakeLookup{found: map[string]models.BookRecord{schemaTherapy: schemaTherapyBook()}}
	svc, _ := newTestService(t, lk)
	ctx := context.Background()

	res, err := svc.SearchSingle(ctx, "978-975-6329-627")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, schemaTherapy, res.Result.ISBN)
	assert.Equal(t, "D&R", res.Result.Site)
	assert.Equal(t, models.ResultFound, res.Result.Status)

	progress, err := svc.Progress(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, progress.Status)
	assert.Equal(t, 1, progress.TotalItems)
	assert.Equal(t, 1, progress.ProcessedItems)
	assert.Equal(t, 1, progress.SuccessfulItems)
	assert.Equal(t, 100, progress.ProgressPercent)

	results, err := svc.Results(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Şema Terapi", results[0].Title)
}

func TestSearchSingleNotFound(t *testing.T) {
	lk := &fakeLookup{}
	svc, _ := newTestService(t, lk)
	ctx := context.Background()

	res, err := svc.SearchSingle(ctx, "0000000000")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, models.ResultNotFound, res.Result.Status)
	assert.Equal(t, "ISBN not found at any source", res.Result.ErrorMessage)

	progress, err := svc.Progress(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, progress.Status)
	assert.Equal(t, 1, progress.ProcessedItems)
	assert.Equal(t, 0, progress.SuccessfulItems)
}

func TestSearchSingleRejectsInvalidISBN(t *testing.T) {
	lk := &fakeLookup{}
	svc, _ := newTestService(t, lk)

	for _, raw := range []string{"", "12-34", "12345", "97897563296X7", "978975632962"} {
		_, err := svc.SearchSingle(context.Background(), raw)
		require.Error(t, err, raw)
		assert.True(t, parser.IsValidationError(err), raw)
	}
	assert.Zero(t, lk.callCount())
}

func TestSearchSingleLookupErrorFailsSession(t *testing.T) {
	lk := &fakeLookup{block: make(chan struct{})}
	svc, st := newTestService(t, lk)
	svc.newID = func() string { return "single-1" }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.SearchSingle(ctx, schemaTherapy)
	require.ErrorIs(t, err, context.Canceled)

	session, err := st.GetSessionByPublicID(context.Background(), "single-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, session.Status)
}

// completionFailingStore rejects the update that marks a session completed.
type completionFailingStore struct {
	store.Store
}

func (s completionFailingStore) UpdateSession(ctx context.Context, id string, u models.SessionUpdate) (models.SearchSession, error) {
	if u.Status != nil && *u.Status == models.StatusCompleted {
		return models.SearchSession{}, errors.New("disk full")
	}
	return s.Store.UpdateSession(ctx, id, u)
}

func TestSearchSingleCompletionErrorFailsSession(t *testing.T) {
	lk := &fakeLookup{found: map[string]models.BookRecord{schemaTherapy: schemaTherapyBook()}}
	mem := store.NewMemoryStore()
	svc := NewService(lk, completionFailingStore{Store: mem}, Options{})
	svc.newID = func() string { return "single-2" }

	_, err := svc.SearchSingle(context.Background(), schemaTherapy)
	require.ErrorContains(t, err, "disk full")

	session, err := mem.GetSessionByPublicID(context.Background(), "single-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, session.Status)
}

func TestStartBulkProcessesValidISBNs(t *testing.T) {
	lk := &fakeLookup{found: map[string]models.BookRecord{schemaTherapy: schemaTherapyBook()}}
	svc, _ := newTestService(t, lk)
	ctx := context.Background()

	started, err := svc.StartBulk(ctx, []string{schemaTherapy, "not-an-isbn", " ", "0-000-00000-0"})
	require.NoError(t, err)
	assert.Equal(t, 2, started.TotalItems)
	assert.Equal(t, 2, started.ValidISBNs)
	assert.Equal(t, 1, started.InvalidISBNs)
	assert.Equal(t, []string{"not-an-isbn"}, started.Invalid)

	svc.Wait()

	progress, err := svc.Progress(ctx, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, progress.Status)
	assert.Equal(t, 2, progress.ProcessedItems)
	assert.Equal(t, 1, progress.SuccessfulItems)
	assert.Equal(t, 100, progress.ProgressPercent)

	results, err := svc.Results(ctx, started.SessionID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, schemaTherapy, results[0].ISBN)
	assert.Equal(t, models.ResultFound, results[0].Status)
	assert.Equal(t, "0000000000", results[1].ISBN)
	assert.Equal(t, models.ResultNotFound, results[1].Status)
}

func TestStartBulkValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeLookup{})

	_, err := svc.StartBulk(context.Background(), []string{" ", ""})
	assert.ErrorIs(t, err, parser.ErrEmptyUpload)

	_, err = svc.StartBulk(context.Background(), []string{"abc", "123"})
	assert.ErrorIs(t, err, parser.ErrNoValidISBNs)
}

func TestStartBulkFromReader(t *testing.T) {
	svc, _ := newTestService(t, &fakeLookup{})

	sheet := "ISBN\n9789756329627\n978-0-00-000000-2\n"
	started, err := svc.StartBulkFromReader(context.Background(), strings.NewReader(sheet))
	require.NoError(t, err)
	assert.Equal(t, 2, started.ValidISBNs)
	assert.Equal(t, 1, started.InvalidISBNs)
	svc.Wait()
}

func TestStartBulkOutlivesRequestContext(t *testing.T) {
	lk := &fakeLookup{block: make(chan struct{})}
	svc, _ := newTestService(t, lk)

	reqCtx, cancel := context.WithCancel(context.Background())
	started, err := svc.StartBulk(reqCtx, []string{schemaTherapy})
	require.NoError(t, err)
	cancel()

	_, running := svc.Job(started.SessionID)
	assert.True(t, running)

	close(lk.block)
	svc.Wait()

	progress, err := svc.Progress(context.Background(), started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, progress.Status)
}

func TestShutdownCancelsRunningJobs(t *testing.T) {
	lk := &fakeLookup{block: make(chan struct{})}
	svc, _ := newTestService(t, lk)

	started, err := svc.StartBulk(context.Background(), []string{schemaTherapy, "0000000000"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = svc.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	progress, err := svc.Progress(context.Background(), started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, progress.Status)

	_, err = svc.StartBulk(context.Background(), []string{schemaTherapy})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, &fakeLookup{})
	ctx := context.Background()

	_, err := svc.Progress(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	_, err = svc.Results(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	err = svc.Export(ctx, "missing", "csv", &bytes.Buffer{})
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestExport(t *testing.T) {
	lk := &fakeLookup{found: map[string]models.BookRecord{schemaTherapy: schemaTherapyBook()}}
	svc, _ := newTestService(t, lk)
	ctx := context.Background()

	res, err := svc.SearchSingle(ctx, schemaTherapy)
	require.NoError(t, err)

	var csvOut bytes.Buffer
	require.NoError(t, svc.Export(ctx, res.SessionID, "csv", &csvOut))
	lines := strings.Split(strings.TrimSpace(csvOut.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "isbn,site,title,author,publisher,price,url,status,error_message", lines[0])
	assert.Contains(t, lines[1], "Şema Terapi")

	var jsonOut bytes.Buffer
	require.NoError(t, svc.Export(ctx, res.SessionID, "json", &jsonOut))
	var decoded models.SearchResultRecord
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(jsonOut.Bytes()), &decoded))
	assert.Equal(t, schemaTherapy, decoded.ISBN)

	var xlsxOut bytes.Buffer
	require.NoError(t, svc.Export(ctx, res.SessionID, "xlsx", &xlsxOut))
	book, err := excelize.OpenReader(&xlsxOut)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(pipeline.ResultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, pipeline.ResultColumns, rows[0])
	assert.Equal(t, []string{schemaTherapy, "D&R", "Şema Terapi"}, rows[1][:3])

	err = svc.Export(ctx, res.SessionID, "xml", &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExportWithoutResults(t *testing.T) {
	lk := &fakeLookup{block: make(chan struct{})}
	svc, _ := newTestService(t, lk)

	started, err := svc.StartBulk(context.Background(), []string{schemaTherapy})
	require.NoError(t, err)

	err = svc.Export(context.Background(), started.SessionID, "csv", &bytes.Buffer{})
	assert.True(t, errors.Is(err, ErrNoResults))
	close(lk.block)
}

func TestSiteStatusDelegates(t *testing.T) {
	svc, _ := newTestService(t, &fakeLookup{})
	sites := svc.SiteStatus(context.Background())
	require.Len(t, sites, 2)
	assert.Equal(t, "Babil", sites[0].Name)
}
