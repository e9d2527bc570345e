package report

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/phoneval/internal/eval"
	"github.com/MrWong99/phoneval/internal/store"
	"github.com/MrWong99/phoneval/pkg/metric"
)

func TestBatch(t *testing.T) {
	t.Parallel()

	scored := mustScore(t, metric.PER, "K AE T", "B AE T")
	empty, _ := metric.Compute(metric.PER, "", "AH")
	var c metric.Corpus
	c.Add(scored)
	c.Add(empty)

	rep := &eval.Report{
		Results: []eval.Result{
			{ID: "cat", Status: eval.StatusScored, Scores: []metric.Score{scored}, Cached: 1},
			{ID: "silent", Status: eval.StatusSkipped, Scores: []metric.Score{empty}},
			{ID: "noisy", Status: eval.StatusFailed, Error: "transcribe: server busy"},
		},
		Corpus: []metric.Corpus{c},
		Scored: 1, Skipped: 1, Failed: 1,
	}
	out := Batch(rep)
	rows := cells(t, out)

	want := [][]string{
		{"Sample", "Status", "PER", "Note"},
		{"cat", "scored", "33.3%", "cached"},
		{"silent", "skipped", "n/a", "empty reference"},
		{"noisy", "failed", "n/a", "transcribe: server busy"},
	}
	for i, w := range want {
		if !slices.Equal(rows[i], w) {
			t.Errorf("row %d = %q, want %q", i, rows[i], w)
		}
	}
	if !strings.Contains(out, "| Metric | Samples |") {
		t.Error("corpus summary missing")
	}
	if !strings.HasSuffix(out, "Scored = 1, skipped = 1, failed = 1\n") {
		t.Errorf("tally line missing: %q", out)
	}
}

func TestRuns(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	out := Runs([]store.Run{
		{
			ID: "r1", Manifest: "wre.yaml", Started: start, Finished: start.Add(1500 * time.Millisecond),
			Samples: 4, Scored: 3, Skipped: 1, Rates: map[string]float64{"per": 0.25, "wer": 0.5},
		},
		{ID: "r2", Manifest: "lnf.yaml", Started: start, Finished: start},
	})
	rows := cells(t, out)
	want := []string{"r1", "wre.yaml", "2026-03-01 09:30:00", "1.5s", "4", "3", "1", "0", "WER 50.0%, PER 25.0%"}
	if !slices.Equal(rows[1], want) {
		t.Errorf("row = %q, want %q", rows[1], want)
	}
	if rows[2][8] != "n/a" {
		t.Errorf("rates without data = %q", rows[2][8])
	}
}
