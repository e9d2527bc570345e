// Package report renders scores and alignments as Markdown tables and JSON.
//
// Every function here is deterministic: the same score always renders to the
// same bytes. Numbers are taken from the computed [metric.Score] and never
// re-derived from the rendered text, so a report can be handed to a narrator
// as ground truth.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MrWong99/phoneval/pkg/align"
	"github.com/MrWong99/phoneval/pkg/metric"
	"github.com/MrWong99/phoneval/pkg/phoneme"
)

// Arrow separates the expected and produced token of an error.
const Arrow = "→"

// Percent formats rate as a percentage with one decimal ("63.3%").
func Percent(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 1, 64) + "%"
}

// Edit renders an error as ref→hyp using [phoneme.Gap] for the missing side.
// Matches render as the bare token.
func Edit(kind align.Kind, ref, hyp string) string {
	switch kind {
	case align.Match:
		return ref
	case align.Insert:
		return phoneme.Gap + Arrow + hyp
	case align.Delete:
		return ref + Arrow + phoneme.Gap
	default:
		return ref + Arrow + hyp
	}
}

func bold(s string) string { return "**" + s + "**" }

// Space stands in for a space token, which a table cell would otherwise
// render blank.
const Space = "␣"

func token(seq []string, i int) string {
	if i == align.NoIndex {
		return phoneme.Gap
	}
	if seq[i] == " " {
		return Space
	}
	return seq[i]
}

// Alignment renders the score's edit script as a table with one row per op.
// Errors are shown in bold: **a→b** for substitutions, **a→∅** for deletions
// and **∅→b** for insertions.
func Alignment(s metric.Score) string {
	t := newTable("#", "Ref", "Hyp", "Result")
	for i, op := range s.Alignment {
		ref, hyp := token(s.Reference, op.Ref), token(s.Hypothesis, op.Hyp)
		result := Edit(op.Kind, ref, hyp)
		if op.Kind.IsError() {
			result = bold(result)
		}
		t.add(strconv.Itoa(i+1), ref, hyp, result)
	}
	return t.String()
}

// Summary renders the error counts of s and its rate:
//
//	| Metric | S | D | I | N | Errors | Rate  |
//	| PER    | 1 | 1 | 0 | 4 | 2      | 50.0% |
//
// A score with an empty reference shows "n/a" for the rate.
func Summary(s metric.Score) string {
	t := newTable("Metric", "S", "D", "I", "N", "Errors", "Rate")
	rate := "n/a"
	if s.RefLen() > 0 {
		rate = Percent(s.Rate)
	}
	t.add(
		strings.ToUpper(string(s.Kind)),
		strconv.Itoa(s.Counts.Substitutions),
		strconv.Itoa(s.Counts.Deletions),
		strconv.Itoa(s.Counts.Insertions),
		strconv.Itoa(s.RefLen()),
		strconv.Itoa(s.Distance),
		rate,
	)
	return t.String()
}

// CorpusSummary renders one row per corpus aggregate, including the number of
// samples skipped for an empty reference.
func CorpusSummary(corpora []metric.Corpus) string {
	t := newTable("Metric", "Samples", "Skipped", "S", "D", "I", "N", "Rate")
	for _, c := range corpora {
		rate := "n/a"
		if r, err := c.Rate(); err == nil {
			rate = Percent(r)
		}
		t.add(
			strings.ToUpper(string(c.Kind)),
			strconv.Itoa(c.Samples),
			strconv.Itoa(c.Skipped),
			strconv.Itoa(c.Counts.Substitutions),
			strconv.Itoa(c.Counts.Deletions),
			strconv.Itoa(c.Counts.Insertions),
			strconv.Itoa(c.RefLen),
			rate,
		)
	}
	return t.String()
}

// JSON writes v to w as indented JSON followed by a newline.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}
