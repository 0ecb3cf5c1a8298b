package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrStatusRegression is returned when an update would move a session backwards.
	ErrStatusRegression = errors.New("session status cannot move backwards")
	// ErrProgressRegression is returned when processed items would decrease.
	ErrProgressRegression = errors.New("processed items cannot decrease")
	// ErrProgressOverflow is returned when counters exceed their bounds.
	ErrProgressOverflow = errors.New("progress counters out of range")
)

// SearchType distinguishes single lookups from bulk jobs.
type SearchType string

const (
	SearchTypeSingle SearchType = "single"
	SearchTypeBulk   SearchType = "bulk"
)

// SessionStatus is the lifecycle state of a search session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// Rank orders the lifecycle; both terminal states share the highest rank.
func (s SessionStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// IsTerminal reports whether no further transitions are allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	return s.Rank() >= 0
}

// CanTransitionTo reports whether a session in s may be moved to next.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return next.Rank() > s.Rank()
}

// ResultStatus is the per-ISBN outcome stored for a session.
type ResultStatus string

const (
	ResultFound    ResultStatus = "found"
	ResultNotFound ResultStatus = "not_found"
	ResultError    ResultStatus = "error"
)

// SearchSession tracks one single or bulk search and its progress counters.
type SearchSession struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"sessionId"`
	SearchType      SearchType    `json:"searchType"`
	Status          SessionStatus `json:"status"`
	TotalItems      int           `json:"totalItems"`
	ProcessedItems  int           `json:"processedItems"`
	SuccessfulItems int           `json:"successfulItems"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// NewSession describes a session to be created.
type NewSession struct {
	SessionID  string
	SearchType SearchType
	Status     SessionStatus
	TotalItems int
}

// Validate checks the creation request.
func (n NewSession) Validate() error {
	if n.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if n.SearchType != SearchTypeSingle && n.SearchType != SearchTypeBulk {
		return fmt.Errorf("unknown search type %q", n.SearchType)
	}
	if !n.Status.Valid() {
		return fmt.Errorf("unknown session status %q", n.Status)
	}
	if n.TotalItems < 0 {
		return fmt.Errorf("total items cannot be negative")
	}
	return nil
}

// Build materializes the session with the given internal id and timestamp.
func (n NewSession) Build(id string, now time.Time) SearchSession {
	return SearchSession{
		ID:         id,
		SessionID:  n.SessionID,
		SearchType: n.SearchType,
		Status:     n.Status,
		TotalItems: n.TotalItems,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SessionUpdate is a partial update; nil fields are left untouched.
type SessionUpdate struct {
	Status          *SessionStatus
	ProcessedItems  *int
	SuccessfulItems *int
}

// StatusUpdate builds an update that only changes the status.
func StatusUpdate(status SessionStatus) SessionUpdate {
	return SessionUpdate{Status: &status}
}

// CountersUpdate builds an update that only changes the counters.
func CountersUpdate(processed, successful int) SessionUpdate {
	return SessionUpdate{ProcessedItems: &processed, SuccessfulItems: &successful}
}

// ApplyUpdate applies u to s, enforcing the lifecycle and counter invariants.
// On error s is left unchanged.
func ApplyUpdate(s *SearchSession, u SessionUpdate, now time.Time) error {
	next := *s

	if u.Status != nil {
		if !s.Status.CanTransitionTo(*u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, s.Status, *u.Status)
		}
		next.Status = *u.Status
	}
	if u.ProcessedItems != nil {
		if *u.ProcessedItems < s.ProcessedItems {
			return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, s.ProcessedItems, *u.ProcessedItems)
		}
		next.ProcessedItems = *u.ProcessedItems
	}
	if u.SuccessfulItems != nil {
		if *u.SuccessfulItems < 0 {
			return fmt.Errorf("%w: successful items %d", ErrProgressOverflow, *u.SuccessfulItems)
		}
		next.SuccessfulItems = *u.SuccessfulItems
	}
	if next.ProcessedItems > next.TotalItems {
		return fmt.Errorf("%w: processed %d of %d", ErrProgressOverflow, next.ProcessedItems, next.TotalItems)
	}
	if next.SuccessfulItems > next.ProcessedItems {
		return fmt.Errorf("%w: successful %d of %d processed", ErrProgressOverflow, next.SuccessfulItems, next.ProcessedItems)
	}

	next.UpdatedAt = now
	*s = next
	return nil
}

// SearchResultRecord is one persisted per-ISBN outcome of a session.
type SearchResultRecord struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"sessionId"`
	ISBN         string       `json:"isbn"`
	Site         string       `json:"site"`
	Title        string       `json:"title"`
	Author       string       `json:"author"`
	Publisher    string       `json:"publisher"`
	Price        string       `json:"price"`
	URL          string       `json:"url"`
	Status       ResultStatus `json:"status"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// ResultFromOutcome converts a lookup outcome into a result record.
func ResultFromOutcome(sessionID, isbn string, outcome LookupOutcome) SearchResultRecord {
	rec := SearchResultRecord{
		SessionID: sessionID,
		ISBN:      isbn,
	}
	if outcome.OK() {
		rec.Site = outcome.Record.Site
		rec.Title = outcome.Record.Title
		rec.Author = outcome.Record.Author
		rec.Publisher = outcome.Record.Publisher
		rec.Price = outcome.Record.Price
		rec.URL = outcome.Record.URL
		rec.Status = ResultFound
		return rec
	}
	rec.Status = ResultNotFound
	rec.ErrorMessage = outcome.ErrorMessage
	return rec
}

// ErrorResult records a lookup that failed with an unexpected error.
func ErrorResult(sessionID, isbn string, err error) SearchResultRecord {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return SearchResultRecord{
		SessionID:    sessionID,
		ISBN:         isbn,
		Status:       ResultError,
		ErrorMessage: msg,
	}
}

// Book returns the bibliographic fields of the record.
func (r SearchResultRecord) Book() BookRecord {
	return BookRecord{
		ISBN:      r.ISBN,
		Title:     r.Title,
		Author:    r.Author,
		Publisher: r.Publisher,
		Price:     r.Price,
		URL:       r.URL,
		Site:      r.Site,
	}
}

// Progress is the pollable view of a session.
type Progress struct {
	SessionID       string        `json:"sessionId"`
	Status          SessionStatus `json:"status"`
	TotalItems      int           `json:"totalItems"`
	ProcessedItems  int           `json:"processedItems"`
	SuccessfulItems int           `json:"successfulItems"`
	ProgressPercent int           `json:"progress"`
}

// ProgressOf builds the progress view for s.
func ProgressOf(s SearchSession) Progress {
	return Progress{
		SessionID:       s.SessionID,
		Status:          s.Status,
		TotalItems:      s.TotalItems,
		ProcessedItems:  s.ProcessedItems,
		SuccessfulItems: s.SuccessfulItems,
		ProgressPercent: ProgressPercent(s.ProcessedItems, s.TotalItems),
	}
}

// ProgressPercent returns round(processed/total*100), or 0 when total is 0.
func ProgressPercent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}

// SiteState is the health of one source.
type SiteState string

const (
	SiteActive   SiteState = "active"
	SiteInactive SiteState = "inactive"
	SiteError    SiteState = "error"
)

// SiteStatus is one entry of the site health view.
type SiteStatus struct {
	Name        string    `json:"name"`
	Status      SiteState `json:"status"`
	LastChecked time.Time `json:"lastChecked"`
	Error       string    `json:"error,omitempty"`
}
