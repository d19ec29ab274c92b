package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cwygoda/pitcher/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id                 TEXT PRIMARY KEY,
    item_id            TEXT NOT NULL,
    fingerprint        TEXT NOT NULL DEFAULT '',
    strategy           TEXT NOT NULL,
    variant            TEXT NOT NULL DEFAULT '',
    url                TEXT NOT NULL,
    state              TEXT NOT NULL,
    count              INTEGER NOT NULL DEFAULT 0,
    last_kind          TEXT NOT NULL DEFAULT '',
    last_error         TEXT NOT NULL DEFAULT '',
    backoff_ms         INTEGER NOT NULL DEFAULT 0,
    evidence           TEXT NOT NULL DEFAULT '',
    history            TEXT NOT NULL DEFAULT '[]',
    started_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL,
    ended_at           DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_state ON attempts(state);
CREATE INDEX IF NOT EXISTS idx_attempts_fingerprint ON attempts(fingerprint);

CREATE TABLE IF NOT EXISTS snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    campaign_id TEXT NOT NULL,
    taken_at    DATETIME NOT NULL,
    body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_campaign ON snapshots(campaign_id);
`

// Repository implements domain.AttemptRepository using SQLite.
type Repository struct {
	db *sql.DB
}

// New opens the database at dbPath, creating the file and schema if needed.
func New(dbPath string) (*Repository, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Attempts finish concurrently; one writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Archive stores a terminal attempt, replacing an earlier copy with the same ID.
func (r *Repository) Archive(ctx context.Context, a *domain.Attempt) error {
	history, err := json.Marshal(a.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO attempts
		 (id, item_id, fingerprint, strategy, variant, url, state, count, last_kind, last_error,
		  backoff_ms, evidence, history, started_at, updated_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ItemID, a.Fingerprint, a.Strategy, a.Variant, a.URL, string(a.State), a.Count,
		string(a.LastKind), a.LastError, a.CumulativeBackoff.Milliseconds(), a.Evidence, string(history),
		a.StartedAt.UTC(), a.UpdatedAt.UTC(), a.EndedAt.UTC(),
	)
	return err
}

const attemptColumns = `id, item_id, fingerprint, strategy, variant, url, state, count, last_kind,
	last_error, backoff_ms, evidence, history, started_at, updated_at, ended_at`

// Get retrieves an archived attempt by ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Attempt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id)
	return scanAttempt(row)
}

// Recent returns up to limit attempts, most recently finished first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]domain.Attempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts ORDER BY ended_at DESC, id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Fingerprints returns the fingerprints of items that were submitted or
// handed to review, which must never be attempted again.
func (r *Repository) Fingerprints(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT fingerprint FROM attempts
		 WHERE fingerprint != '' AND state IN (?, ?) ORDER BY fingerprint`,
		string(domain.StateSubmitted), string(domain.StatePendingReview),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// SaveSnapshot appends an encoded snapshot.
func (r *Repository) SaveSnapshot(ctx context.Context, campaignID string, at time.Time, body []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO snapshots (campaign_id, taken_at, body) VALUES (?, ?, ?)`,
		campaignID, at.UTC(), string(body),
	)
	return err
}

// Snapshots returns the encoded snapshots of a campaign, oldest first.
func (r *Repository) Snapshots(ctx context.Context, campaignID string) ([][]byte, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM snapshots WHERE campaign_id = ? ORDER BY id ASC`, campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, []byte(body))
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*domain.Attempt, error) {
	var (
		a                    domain.Attempt
		state, kind, history string
		backoffMS            int64
	)
	err := row.Scan(&a.ID, &a.ItemID, &a.Fingerprint, &a.Strategy, &a.Variant, &a.URL, &state, &a.Count,
		&kind, &a.LastError, &backoffMS, &a.Evidence, &history, &a.StartedAt, &a.UpdatedAt, &a.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	a.State = domain.AttemptState(state)
	a.LastKind = domain.FailureKind(kind)
	a.CumulativeBackoff = time.Duration(backoffMS) * time.Millisecond
	if err := json.Unmarshal([]byte(history), &a.History); err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", a.ID, err)
	}
	return &a, nil
}
