package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/phoneval/internal/eval"
	"github.com/MrWong99/phoneval/internal/store"
	"github.com/MrWong99/phoneval/pkg/metric"
)

// Batch renders one row per sample of rep followed by the corpus summary.
// Rate columns follow the order of rep.Corpus.
func Batch(rep *eval.Report) string {
	header := []string{"Sample", "Status"}
	for _, c := range rep.Corpus {
		header = append(header, strings.ToUpper(string(c.Kind)))
	}
	header = append(header, "Note")

	t := newTable(header...)
	for _, res := range rep.Results {
		row := []string{res.ID, string(res.Status)}
		for _, c := range rep.Corpus {
			row = append(row, sampleRate(res, c.Kind))
		}
		row = append(row, note(res))
		t.add(row...)
	}

	var sb strings.Builder
	t.writeTo(&sb)
	sb.WriteString("\n")
	sb.WriteString(CorpusSummary(rep.Corpus))
	sb.WriteString("\nScored = " + strconv.Itoa(rep.Scored))
	sb.WriteString(", skipped = " + strconv.Itoa(rep.Skipped))
	sb.WriteString(", failed = " + strconv.Itoa(rep.Failed) + "\n")
	return sb.String()
}

func sampleRate(res eval.Result, kind metric.Kind) string {
	s, ok := res.Score(kind)
	if !ok || s.RefLen() == 0 {
		return "n/a"
	}
	return Percent(s.Rate)
}

func note(res eval.Result) string {
	switch {
	case res.Error != "":
		return res.Error
	case res.Status == eval.StatusSkipped:
		return "empty reference"
	case res.Cached > 0:
		return "cached"
	}
	return ""
}

// Runs renders stored runs, one per row, with their corpus rates.
func Runs(runs []store.Run) string {
	t := newTable("Run", "Manifest", "Started", "Duration", "Samples", "Scored", "Skipped", "Failed", "Rates")
	for _, r := range runs {
		t.add(
			r.ID,
			r.Manifest,
			r.Started.UTC().Format(time.DateTime),
			r.Finished.Sub(r.Started).Round(time.Millisecond).String(),
			strconv.Itoa(r.Samples),
			strconv.Itoa(r.Scored),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			rates(r.Rates),
		)
	}
	return t.String()
}

// rates lists WER, CER and PER in that order, skipping absent ones.
func rates(m map[string]float64) string {
	var parts []string
	for _, k := range metric.Kinds {
		if v, ok := m[string(k)]; ok {
			parts = append(parts, strings.ToUpper(string(k))+" "+Percent(v))
		}
	}
	if len(parts) == 0 {
		return "n/a"
	}
	return strings.Join(parts, ", ")
}
