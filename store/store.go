// Package store persists search sessions and their per-ISBN results.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/isbn-finder/config"
	"github.com/aluiziolira/isbn-finder/models"
	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when no session matches the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDuplicateSession is returned when the public session id is taken.
	ErrDuplicateSession = errors.New("session already exists")
)

// Store is the session and result persistence used by the lookup service.
// Every method is atomic on its own; no multi-call transactions are offered.
type Store interface {
	CreateSession(ctx context.Context, ns models.NewSession) (models.SearchSession, error)
	GetSession(ctx context.Context, id string) (models.SearchSession, error)
	GetSessionByPublicID(ctx context.Context, sessionID string) (models.SearchSession, error)
	UpdateSession(ctx context.Context, id string, update models.SessionUpdate) (models.SearchSession, error)
	AppendResult(ctx context.Context, rec models.SearchResultRecord) (models.SearchResultRecord, error)
	// ListResultsByPublicID returns results in insertion order; unknown sessions yield an empty list.
	ListResultsByPublicID(ctx context.Context, sessionID string) ([]models.SearchResultRecord, error)
	Close() error
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.StoreMemory, "":
		return NewMemoryStore(), nil
	case config.StoreSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case config.StoreRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// clock and id generation are shared by every backend so tests can pin them.
type stamper struct {
	now   func() time.Time
	newID func() string
}

func defaultStamper() stamper {
	return stamper{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (s stamper) stampResult(rec models.SearchResultRecord) models.SearchResultRecord {
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	return rec
}

func validateResult(rec models.SearchResultRecord) error {
	if rec.SessionID == "" {
		return errors.New("result needs a session id")
	}
	switch rec.Status {
	case models.ResultFound, models.ResultNotFound, models.ResultError:
		return nil
	default:
		return fmt.Errorf("unknown result status %q", rec.Status)
	}
}
