package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS search_sessions (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL UNIQUE,
	search_type      TEXT NOT NULL,
	status           TEXT NOT NULL,
	total_items      INTEGER NOT NULL DEFAULT 0,
	processed_items  INTEGER NOT NULL DEFAULT 0,
	successful_items INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS search_results (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	session_id    TEXT NOT NULL REFERENCES search_sessions(session_id),
	isbn          TEXT NOT NULL,
	site          TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	author        TEXT NOT NULL DEFAULT '',
	publisher     TEXT NOT NULL DEFAULT '',
	price         TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_results_session ON search_results(session_id, seq);
`

const sessionColumns = `id, session_id, search_type, status, total_items, processed_items, successful_items, created_at, updated_at`

// SQLiteStore persists sessions and results in a local SQLite file.
type SQLiteStore struct {
	stamper
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens (and migrates) the database at dbPath. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps read-modify-write updates serialized
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{stamper: defaultStamper(), db: db, dbPath: dbPath}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// CreateSession inserts a session row, rejecting duplicate public ids.
func (s *SQLiteStore) CreateSession(ctx context.Context, ns models.NewSession) (models.SearchSession, error) {
	if err := ns.Validate(); err != nil {
		return models.SearchSession{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.SearchSession{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM search_sessions WHERE session_id = ?`, ns.SessionID).Scan(&exists)
	if err != nil {
		return models.SearchSession{}, fmt.Errorf("check session: %w", err)
	}
	if exists > 0 {
		return models.SearchSession{}, fmt.Errorf("%w: %s", ErrDuplicateSession, ns.SessionID)
	}

	session := ns.Build(s.newID(), s.now())
	_, err = tx.ExecContext(ctx,
		`INSERT INTO search_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.SessionID, string(session.SearchType), string(session.Status),
		session.TotalItems, session.ProcessedItems, session.SuccessfulItems,
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt),
	)
	if err != nil {
		return models.SearchSession{}, fmt.Errorf("insert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.SearchSession{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return session, nil
}

// GetSession loads a session by internal id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (models.SearchSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM search_sessions WHERE id = ?`, id))
}

// GetSessionByPublicID loads a session by its public session id.
func (s *SQLiteStore) GetSessionByPublicID(ctx context.Context, sessionID string) (models.SearchSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM search_sessions WHERE session_id = ?`, sessionID))
}

// UpdateSession applies update inside a transaction and returns the stored row.
func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, update models.SessionUpdate) (models.SearchSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.SearchSession{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	session, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM search_sessions WHERE id = ?`, id))
	if err != nil {
		return models.SearchSession{}, err
	}
	if err := models.ApplyUpdate(&session, update, s.now()); err != nil {
		return models.SearchSession{}, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE search_sessions SET status = ?, processed_items = ?, successful_items = ?, updated_at = ? WHERE id = ?`,
		string(session.Status), session.ProcessedItems, session.SuccessfulItems, formatTime(session.UpdatedAt), id,
	)
	if err != nil {
		return models.SearchSession{}, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.SearchSession{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return session, nil
}

// AppendResult inserts a result row for an existing session.
func (s *SQLiteStore) AppendResult(ctx context.Context, rec models.SearchResultRecord) (models.SearchResultRecord, error) {
	if err := validateResult(rec); err != nil {
		return models.SearchResultRecord{}, err
	}
	if _, err := s.GetSessionByPublicID(ctx, rec.SessionID); err != nil {
		return models.SearchResultRecord{}, err
	}

	rec = s.stampResult(rec)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_results (id, session_id, isbn, site, title, author, publisher, price, url, status, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.ISBN, rec.Site, rec.Title, rec.Author, rec.Publisher, rec.Price, rec.URL,
		string(rec.Status), rec.ErrorMessage, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return models.SearchResultRecord{}, fmt.Errorf("failed to insert record: %w", err)
	}
	return rec, nil
}

// ListResultsByPublicID returns the results of a session in insertion order.
func (s *SQLiteStore) ListResultsByPublicID(ctx context.Context, sessionID string) ([]models.SearchResultRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, isbn, site, title, author, publisher, price, url, status, error_message, created_at
		 FROM search_results WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.SearchResultRecord{}
	for rows.Next() {
		var (
			rec       models.SearchResultRecord
			status    string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ISBN, &rec.Site, &rec.Title, &rec.Author,
			&rec.Publisher, &rec.Price, &rec.URL, &status, &rec.ErrorMessage, &createdAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		rec.Status = models.ResultStatus(status)
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanSession(row *sql.Row) (models.SearchSession, error) {
	var (
		session    models.SearchSession
		searchType string
		status     string
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&session.ID, &session.SessionID, &searchType, &status,
		&session.TotalItems, &session.ProcessedItems, &session.SuccessfulItems, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SearchSession{}, ErrSessionNotFound
	}
	if err != nil {
		return models.SearchSession{}, fmt.Errorf("scan session: %w", err)
	}
	session.SearchType = models.SearchType(searchType)
	session.Status = models.SessionStatus(status)
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.SearchSession{}, err
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.SearchSession{}, err
	}
	return session, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}
