package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSchema is the SQL DDL applied by [SQLiteStore.Migrate]. Timestamps
// are fixed-width RFC 3339 text in UTC; created_at is Unix nanoseconds for ordering.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS phoneval_runs (
    id        TEXT PRIMARY KEY,
    manifest  TEXT NOT NULL DEFAULT '',
    started   TEXT NOT NULL,
    finished  TEXT NOT NULL,
    samples   INTEGER NOT NULL DEFAULT 0,
    scored    INTEGER NOT NULL DEFAULT 0,
    skipped   INTEGER NOT NULL DEFAULT 0,
    failed    INTEGER NOT NULL DEFAULT 0,
    rates     TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS phoneval_scores (
    run_id        TEXT NOT NULL,
    sample_id     TEXT NOT NULL,
    kind          TEXT NOT NULL,
    fingerprint   TEXT NOT NULL,
    distance      INTEGER NOT NULL,
    ref_len       INTEGER NOT NULL,
    rate          REAL NOT NULL,
    substitutions INTEGER NOT NULL,
    insertions    INTEGER NOT NULL,
    deletions     INTEGER NOT NULL,
    matches       INTEGER NOT NULL,
    created_at    INTEGER NOT NULL,
    PRIMARY KEY (run_id, sample_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_phoneval_scores_fingerprint ON phoneval_scores(fingerprint);
CREATE INDEX IF NOT EXISTS idx_phoneval_runs_started ON phoneval_runs(started);
`

// SQLiteStore is a [Store] backed by a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the SQLite database at dsn. The
// store owns the connection; call [SQLiteStore.Close] when done.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %q: %w", dsn, err)
	}
	// SQLite allows one writer; serialise through a single connection.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database file can be reached.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Migrate executes [SQLiteSchema].
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveRun upserts run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	rates, err := json.Marshal(emptyRates(run.Rates))
	if err != nil {
		return fmt.Errorf("store: marshal rates: %w", err)
	}

	const query = `
		INSERT INTO phoneval_runs (id, manifest, started, finished, samples, scored, skipped, failed, rates)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			manifest = excluded.manifest,
			started = excluded.started,
			finished = excluded.finished,
			samples = excluded.samples,
			scored = excluded.scored,
			skipped = excluded.skipped,
			failed = excluded.failed,
			rates = excluded.rates`

	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.Manifest, formatTime(run.Started), formatTime(run.Finished),
		run.Samples, run.Scored, run.Skipped, run.Failed, string(rates),
	)
	if err != nil {
		return fmt.Errorf("store: save run %q: %w", run.ID, err)
	}
	return nil
}

// SaveScore upserts rec.
func (s *SQLiteStore) SaveScore(ctx context.Context, rec ScoreRecord) error {
	const query = `
		INSERT INTO phoneval_scores (
			run_id, sample_id, kind, fingerprint, distance, ref_len, rate,
			substitutions, insertions, deletions, matches, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (run_id, sample_id, kind) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			distance = excluded.distance,
			ref_len = excluded.ref_len,
			rate = excluded.rate,
			substitutions = excluded.substitutions,
			insertions = excluded.insertions,
			deletions = excluded.deletions,
			matches = excluded.matches,
			created_at = excluded.created_at`

	_, err := s.db.ExecContext(ctx, query,
		rec.RunID, rec.SampleID, rec.Kind, rec.Fingerprint, rec.Distance, rec.RefLen, rec.Rate,
		rec.Substitutions, rec.Insertions, rec.Deletions, rec.Matches, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store: save score %s/%s/%s: %w", rec.RunID, rec.SampleID, rec.Kind, err)
	}
	return nil
}

// LookupScore returns the newest score with the given fingerprint.
func (s *SQLiteStore) LookupScore(ctx context.Context, fingerprint string) (ScoreRecord, bool, error) {
	const query = `
		SELECT run_id, sample_id, kind, fingerprint, distance, ref_len, rate,
		       substitutions, insertions, deletions, matches
		FROM phoneval_scores
		WHERE fingerprint = ?
		ORDER BY created_at DESC
		LIMIT 1`

	var rec ScoreRecord
	err := s.db.QueryRowContext(ctx, query, fingerprint).Scan(
		&rec.RunID, &rec.SampleID, &rec.Kind, &rec.Fingerprint, &rec.Distance, &rec.RefLen, &rec.Rate,
		&rec.Substitutions, &rec.Insertions, &rec.Deletions, &rec.Matches,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScoreRecord{}, false, nil
		}
		return ScoreRecord{}, false, fmt.Errorf("store: lookup score: %w", err)
	}
	return rec, true, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	const query = `
		SELECT id, manifest, started, finished, samples, scored, skipped, failed, rates
		FROM phoneval_runs
		ORDER BY started DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run               Run
			started, finished string
			rates             string
		)
		if err := rows.Scan(
			&run.ID, &run.Manifest, &started, &finished,
			&run.Samples, &run.Scored, &run.Skipped, &run.Failed, &rates,
		); err != nil {
			return nil, fmt.Errorf("store: list runs scan: %w", err)
		}
		if run.Started, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("store: run %q started: %w", run.ID, err)
		}
		if run.Finished, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("store: run %q finished: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(rates), &run.Rates); err != nil {
			return nil, fmt.Errorf("store: unmarshal rates of run %q: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return runs, nil
}

// timeLayout is fixed-width so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
