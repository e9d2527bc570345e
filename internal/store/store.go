// Package store persists evaluation runs and per-sample scores.
//
// Scores are keyed by a content fingerprint of (metric, reference,
// hypothesis) so a later run can reuse a score instead of recomputing it.
// Two backends are provided: [PostgresStore] on pgx and [SQLiteStore] on
// database/sql with the pure-Go modernc.org/sqlite driver.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run summarises one batch evaluation.
type Run struct {
	ID       string    `json:"id"`
	Manifest string    `json:"manifest"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Samples  int       `json:"samples"`
	Scored   int       `json:"scored"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`

	// Rates maps a metric name to its corpus error rate. Metrics without a
	// scorable sample are absent.
	Rates map[string]float64 `json:"rates"`
}

// NewRunID returns a random run identifier.
func NewRunID() string { return uuid.NewString() }

// ScoreRecord is one metric computed for one sample in one run.
type ScoreRecord struct {
	RunID       string  `json:"run_id"`
	SampleID    string  `json:"sample_id"`
	Kind        string  `json:"kind"`
	Fingerprint string  `json:"fingerprint"`
	Distance    int     `json:"distance"`
	RefLen      int     `json:"ref_len"`
	Rate        float64 `json:"rate"`

	Substitutions int `json:"substitutions"`
	Insertions    int `json:"insertions"`
	Deletions     int `json:"deletions"`
	Matches       int `json:"matches"`
}

// Store records runs and scores. Implementations must be safe for
// concurrent use.
type Store interface {
	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	// SaveRun inserts run or replaces the stored run with the same ID.
	SaveRun(ctx context.Context, run Run) error

	// SaveScore inserts rec or replaces the score stored for the same run,
	// sample and metric.
	SaveScore(ctx context.Context, rec ScoreRecord) error

	// LookupScore returns the most recently stored score with the given
	// fingerprint from any run. found is false when there is none.
	LookupScore(ctx context.Context, fingerprint string) (rec ScoreRecord, found bool, err error)

	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
