package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	return assign(r.data[r.idx-1], dest)
}

// assign copies row values into scan destinations.
func assign(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *float64:
			*d = v.(float64)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore_Ping(t *testing.T) {
	t.Parallel()

	var gotSQL string
	s := NewPostgresStore(&mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		gotSQL = sql
		return pgconn.CommandTag{}, nil
	}})
	if err := s.Ping(context.Background()); err != nil || gotSQL != "SELECT 1" {
		t.Errorf("Ping = %v, sql %q", err, gotSQL)
	}

	down := NewPostgresStore(&mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("connection refused")
	}})
	if err := down.Ping(context.Background()); err == nil || !strings.Contains(err.Error(), "store: ping") {
		t.Errorf("err = %v", err)
	}
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	var gotSQL string
	s := NewPostgresStore(&mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		gotSQL = sql
		return pgconn.CommandTag{}, nil
	}})
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if gotSQL != PostgresSchema {
		t.Error("Migrate did not execute PostgresSchema")
	}

	failing := NewPostgresStore(&mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}})
	if err := failing.Migrate(context.Background()); err == nil || !strings.Contains(err.Error(), "store: migrate") {
		t.Errorf("err = %v", err)
	}
}

func TestPostgresStore_SaveRun(t *testing.T) {
	t.Parallel()

	var gotArgs []any
	s := NewPostgresStore(&mockDB{execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if !strings.Contains(sql, "ON CONFLICT (id)") {
			t.Errorf("SaveRun is not an upsert: %s", sql)
		}
		gotArgs = args
		return pgconn.CommandTag{}, nil
	}})

	run := Run{ID: "r1", Manifest: "m.yaml", Samples: 3, Scored: 2, Skipped: 1}
	if err := s.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if len(gotArgs) != 9 {
		t.Fatalf("got %d args, want 9", len(gotArgs))
	}
	if rates := string(gotArgs[8].([]byte)); rates != "{}" {
		t.Errorf("nil rates stored as %q, want {}", rates)
	}
}

func TestPostgresStore_SaveScore(t *testing.T) {
	t.Parallel()

	var gotArgs []any
	s := NewPostgresStore(&mockDB{execFunc: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
		gotArgs = args
		return pgconn.CommandTag{}, nil
	}})
	rec := ScoreRecord{RunID: "r1", SampleID: "s1", Kind: "per", Fingerprint: "abc", Distance: 2, RefLen: 8, Rate: 0.25}
	if err := s.SaveScore(context.Background(), rec); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	if gotArgs[0] != "r1" || gotArgs[3] != "abc" || gotArgs[6] != 0.25 {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestPostgresStore_LookupScore(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		s := NewPostgresStore(&mockDB{queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				return assign([]any{"r0", "s1", "per", args[0].(string), 2, 8, 0.25, 1, 0, 1, 6}, dest)
			}}
		}})
		rec, found, err := s.LookupScore(context.Background(), "fp")
		if err != nil || !found {
			t.Fatalf("LookupScore = %v, %v", found, err)
		}
		if rec.Fingerprint != "fp" || rec.Distance != 2 || rec.Matches != 6 {
			t.Errorf("rec = %+v", rec)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		s := NewPostgresStore(&mockDB{})
		_, found, err := s.LookupScore(context.Background(), "fp")
		if err != nil || found {
			t.Errorf("LookupScore = %v, %v; want not found", found, err)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		s := NewPostgresStore(&mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
			return &mockRow{scanFunc: func(...any) error { return errors.New("conn reset") }}
		}})
		if _, _, err := s.LookupScore(context.Background(), "fp"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestPostgresStore_ListRuns(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var gotSQL string
	var gotArgs []any
	rows := &mockRows{data: [][]any{
		{"r2", "m.yaml", started.Add(time.Hour), started.Add(2 * time.Hour), 4, 3, 1, 0, []byte(`{"per":0.25}`)},
		{"r1", "m.yaml", started, started.Add(time.Minute), 4, 4, 0, 0, []byte(`{}`)},
	}}
	s := NewPostgresStore(&mockDB{queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		gotSQL, gotArgs = sql, args
		return rows, nil
	}})

	runs, err := s.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if !strings.Contains(gotSQL, "LIMIT $1") || len(gotArgs) != 1 || gotArgs[0] != 10 {
		t.Errorf("query = %q args = %v", gotSQL, gotArgs)
	}
	if len(runs) != 2 || runs[0].ID != "r2" || runs[0].Rates["per"] != 0.25 {
		t.Errorf("runs = %+v", runs)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}

	if _, err := s.ListRuns(context.Background(), 0); err != nil {
		t.Fatalf("ListRuns(0): %v", err)
	}
	if strings.Contains(gotSQL, "LIMIT") || len(gotArgs) != 0 {
		t.Errorf("unlimited query = %q args = %v", gotSQL, gotArgs)
	}
}

func TestPostgresStore_ListRunsRowsError(t *testing.T) {
	t.Parallel()
	s := NewPostgresStore(&mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
		return &mockRows{err: errors.New("broken pipe")}, nil
	}})
	if _, err := s.ListRuns(context.Background(), 5); err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("err = %v", err)
	}
}
