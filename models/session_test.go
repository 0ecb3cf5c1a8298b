package models

import (
	"errors"
	"testing"
	"time"
)

func TestSessionStatusTransitions(t *testing.T) {
	tests := []struct {
		from SessionStatus
		to   SessionStatus
		want bool
	}{
		{StatusPending, StatusPending, true},
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusPending, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusCompleted, true},
		{StatusPending, SessionStatus("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Fatalf("CanTransitionTo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyUpdate(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	base := NewSession{SessionID: "pub", SearchType: SearchTypeBulk, Status: StatusInProgress, TotalItems: 3}.Build("id-1", created)

	tests := []struct {
		name    string
		start   func(*SearchSession)
		update  SessionUpdate
		wantErr error
	}{
		{name: "counters forward", update: CountersUpdate(1, 1)},
		{name: "complete", update: StatusUpdate(StatusCompleted)},
		{name: "status regression", update: StatusUpdate(StatusPending), wantErr: ErrStatusRegression},
		{
			name:    "processed regression",
			start:   func(s *SearchSession) { s.ProcessedItems = 2 },
			update:  CountersUpdate(1, 0),
			wantErr: ErrProgressRegression,
		},
		{name: "processed beyond total", update: CountersUpdate(4, 0), wantErr: ErrProgressOverflow},
		{name: "successful beyond processed", update: CountersUpdate(1, 2), wantErr: ErrProgressOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := base
			if tt.start != nil {
				tt.start(&session)
			}
			before := session
			now := created.Add(time.Minute)

			err := ApplyUpdate(&session, tt.update, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if session != before {
					t.Fatalf("session mutated on error: %+v", session)
				}
				return
			}
			if err != nil {
				t.Fatalf("apply update: %v", err)
			}
			if !session.UpdatedAt.Equal(now) {
				t.Fatalf("updatedAt = %v, want %v", session.UpdatedAt, now)
			}
		})
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		processed, total, want int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
	}
	for _, tt := range tests {
		if got := ProgressPercent(tt.processed, tt.total); got != tt.want {
			t.Fatalf("ProgressPercent(%d, %d) = %d, want %d", tt.processed, tt.total, got, tt.want)
		}
	}
}

func TestResultFromOutcome(t *testing.T) {
	found := ResultFromOutcome("s1", "9789756329627", Found(BookRecord{ISBN: "9789756329627", Title: "X", Site: "B"}))
	if found.Status != ResultFound || found.Title != "X" || found.Site != "B" || found.ErrorMessage != "" {
		t.Fatalf("unexpected found record: %+v", found)
	}

	missing := ResultFromOutcome("s1", "1111111111", Failed("nope"))
	if missing.Status != ResultNotFound || missing.ErrorMessage != "nope" || missing.Title != "" {
		t.Fatalf("unexpected not found record: %+v", missing)
	}

	failed := ErrorResult("s1", "1111111111", errors.New("boom"))
	if failed.Status != ResultError || failed.ErrorMessage != "boom" {
		t.Fatalf("unexpected error record: %+v", failed)
	}
}

func TestOutcomeWithSite(t *testing.T) {
	orig := Found(BookRecord{ISBN: "1", Site: "adapter"})
	renamed := orig.WithSite("registry")
	if renamed.Record.Site != "registry" {
		t.Fatalf("site = %q, want registry", renamed.Record.Site)
	}
	if orig.Record.Site != "adapter" {
		t.Fatalf("original record was mutated")
	}
	if Failed("x").WithSite("y").Record != nil {
		t.Fatalf("failed outcome should stay without record")
	}
}
