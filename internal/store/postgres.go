package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresSchema is the SQL DDL for the runs and scores tables. Execute it
// via [PostgresStore.Migrate] or apply it manually during deployment.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS phoneval_runs (
    id        TEXT PRIMARY KEY,
    manifest  TEXT NOT NULL DEFAULT '',
    started   TIMESTAMPTZ NOT NULL,
    finished  TIMESTAMPTZ NOT NULL,
    samples   INTEGER NOT NULL DEFAULT 0,
    scored    INTEGER NOT NULL DEFAULT 0,
    skipped   INTEGER NOT NULL DEFAULT 0,
    failed    INTEGER NOT NULL DEFAULT 0,
    rates     JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS phoneval_scores (
    run_id        TEXT NOT NULL,
    sample_id     TEXT NOT NULL,
    kind          TEXT NOT NULL,
    fingerprint   TEXT NOT NULL,
    distance      INTEGER NOT NULL,
    ref_len       INTEGER NOT NULL,
    rate          DOUBLE PRECISION NOT NULL,
    substitutions INTEGER NOT NULL,
    insertions    INTEGER NOT NULL,
    deletions     INTEGER NOT NULL,
    matches       INTEGER NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (run_id, sample_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_phoneval_scores_fingerprint ON phoneval_scores(fingerprint);
CREATE INDEX IF NOT EXISTS idx_phoneval_runs_started ON phoneval_runs(started);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Corpus rates are stored
// as JSONB.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on the given connection or
// pool. Call [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes [PostgresSchema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping runs a trivial query.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// SaveRun upserts run.
func (s *PostgresStore) SaveRun(ctx context.Context, run Run) error {
	rates, err := json.Marshal(emptyRates(run.Rates))
	if err != nil {
		return fmt.Errorf("store: marshal rates: %w", err)
	}

	const query = `
		INSERT INTO phoneval_runs (id, manifest, started, finished, samples, scored, skipped, failed, rates)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			manifest = EXCLUDED.manifest,
			started = EXCLUDED.started,
			finished = EXCLUDED.finished,
			samples = EXCLUDED.samples,
			scored = EXCLUDED.scored,
			skipped = EXCLUDED.skipped,
			failed = EXCLUDED.failed,
			rates = EXCLUDED.rates`

	_, err = s.db.Exec(ctx, query,
		run.ID, run.Manifest, run.Started, run.Finished,
		run.Samples, run.Scored, run.Skipped, run.Failed, rates,
	)
	if err != nil {
		return fmt.Errorf("store: save run %q: %w", run.ID, err)
	}
	return nil
}

// SaveScore upserts rec.
func (s *PostgresStore) SaveScore(ctx context.Context, rec ScoreRecord) error {
	const query = `
		INSERT INTO phoneval_scores (
			run_id, sample_id, kind, fingerprint, distance, ref_len, rate,
			substitutions, insertions, deletions, matches
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (run_id, sample_id, kind) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			distance = EXCLUDED.distance,
			ref_len = EXCLUDED.ref_len,
			rate = EXCLUDED.rate,
			substitutions = EXCLUDED.substitutions,
			insertions = EXCLUDED.insertions,
			deletions = EXCLUDED.deletions,
			matches = EXCLUDED.matches,
			created_at = now()`

	_, err := s.db.Exec(ctx, query,
		rec.RunID, rec.SampleID, rec.Kind, rec.Fingerprint, rec.Distance, rec.RefLen, rec.Rate,
		rec.Substitutions, rec.Insertions, rec.Deletions, rec.Matches,
	)
	if err != nil {
		return fmt.Errorf("store: save score %s/%s/%s: %w", rec.RunID, rec.SampleID, rec.Kind, err)
	}
	return nil
}

// LookupScore returns the newest score with the given fingerprint.
func (s *PostgresStore) LookupScore(ctx context.Context, fingerprint string) (ScoreRecord, bool, error) {
	const query = `
		SELECT run_id, sample_id, kind, fingerprint, distance, ref_len, rate,
		       substitutions, insertions, deletions, matches
		FROM phoneval_scores
		WHERE fingerprint = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var rec ScoreRecord
	err := s.db.QueryRow(ctx, query, fingerprint).Scan(
		&rec.RunID, &rec.SampleID, &rec.Kind, &rec.Fingerprint, &rec.Distance, &rec.RefLen, &rec.Rate,
		&rec.Substitutions, &rec.Insertions, &rec.Deletions, &rec.Matches,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ScoreRecord{}, false, nil
		}
		return ScoreRecord{}, false, fmt.Errorf("store: lookup score: %w", err)
	}
	return rec, true, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var (
		rows pgx.Rows
		err  error
	)
	const columns = `
		SELECT id, manifest, started, finished, samples, scored, skipped, failed, rates
		FROM phoneval_runs
		ORDER BY started DESC`
	if limit > 0 {
		rows, err = s.db.Query(ctx, columns+` LIMIT $1`, limit)
	} else {
		rows, err = s.db.Query(ctx, columns)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run   Run
			rates []byte
		)
		if err := rows.Scan(
			&run.ID, &run.Manifest, &run.Started, &run.Finished,
			&run.Samples, &run.Scored, &run.Skipped, &run.Failed, &rates,
		); err != nil {
			return nil, fmt.Errorf("store: list runs scan: %w", err)
		}
		if err := json.Unmarshal(rates, &run.Rates); err != nil {
			return nil, fmt.Errorf("store: unmarshal rates of run %q: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return runs, nil
}

// emptyRates returns m if non-nil, otherwise an empty map so the column
// holds "{}" instead of "null".
func emptyRates(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
