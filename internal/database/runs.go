package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrRunNotFound = errors.New("session run not found")

const schema = `
CREATE TABLE IF NOT EXISTS session_runs (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL DEFAULT '',
	marketplace  TEXT NOT NULL,
	query        TEXT NOT NULL,
	status       TEXT NOT NULL,
	outcome      TEXT NOT NULL DEFAULT '',
	pages        INTEGER NOT NULL DEFAULT 0,
	candidates   INTEGER NOT NULL DEFAULT 0,
	accepted     INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
)`

// SessionRun is the persisted record of one queued crawl. It holds counts
// and the outcome kind only; prices are never stored.
type SessionRun struct {
	ID          string
	SessionID   string
	Marketplace string
	Query       string
	Status      string
	Outcome     string
	Pages       int
	Candidates  int
	Accepted    int
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema creates the session_runs table when missing.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (r *RunRepository) Insert(ctx context.Context, run *SessionRun) error {
	query := `
		INSERT INTO session_runs (id, marketplace, query, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, run.ID, run.Marketplace, run.Query, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session run: %w", err)
	}
	return nil
}

func (r *RunRepository) Update(ctx context.Context, run *SessionRun) error {
	query := `
		UPDATE session_runs SET
			session_id = $2,
			status = $3,
			outcome = $4,
			pages = $5,
			candidates = $6,
			accepted = $7,
			error = $8,
			started_at = $9,
			completed_at = $10
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		run.ID, run.SessionID, run.Status, run.Outcome,
		run.Pages, run.Candidates, run.Accepted, run.Error,
		run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id string) (*SessionRun, error) {
	query := `
		SELECT id, session_id, marketplace, query, status, outcome,
		       pages, candidates, accepted, error,
		       created_at, started_at, completed_at
		FROM session_runs
		WHERE id = $1`

	run := &SessionRun{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.SessionID, &run.Marketplace, &run.Query, &run.Status, &run.Outcome,
		&run.Pages, &run.Candidates, &run.Accepted, &run.Error,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session run: %w", err)
	}
	return run, nil
}

// CountByStatus returns the number of runs per status.
func (r *RunRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM session_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count session runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
