package report

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/phoneval/internal/phonetic"
	"github.com/MrWong99/phoneval/pkg/align"
	"github.com/MrWong99/phoneval/pkg/metric"
	"github.com/MrWong99/phoneval/pkg/phoneme"
)

// PerPhoneme renders a word row's cells with runs of consecutive errors
// wrapped in a single bold span: "F **R→∅** AH **M→N**".
func PerPhoneme(row phoneme.WordRow) string {
	var (
		parts []string
		run   []string
	)
	flush := func() {
		if len(run) > 0 {
			parts = append(parts, bold(strings.Join(run, " ")))
			run = run[:0]
		}
	}
	for _, c := range row.Cells {
		if c.Kind.IsError() {
			run = append(run, Edit(c.Kind, c.Ref, c.Hyp))
			continue
		}
		flush()
		parts = append(parts, c.Ref)
	}
	flush()
	return strings.Join(parts, " ")
}

func shortKind(k align.Kind) string {
	switch k {
	case align.Substitute:
		return "sub"
	case align.Insert:
		return "ins"
	case align.Delete:
		return "del"
	default:
		return k.String()
	}
}

// ErrorType describes a row's errors: "R→∅, M→N (del+sub)". Rows without
// errors are "correct".
func ErrorType(row phoneme.WordRow) string {
	errs := row.Errors()
	if len(errs) == 0 {
		return "correct"
	}
	edits := make([]string, len(errs))
	var kinds []string
	for i, c := range errs {
		edits[i] = Edit(c.Kind, c.Ref, c.Hyp)
		if k := shortKind(c.Kind); !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	return fmt.Sprintf("%s (%s)", strings.Join(edits, ", "), strings.Join(kinds, "+"))
}

// WordSummary is the word-level tally of a grouped alignment.
type WordSummary struct {
	Words     int     `json:"words"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Rate      float64 `json:"rate"`
}

// SummarizeWords counts correct and incorrect words. Rate is the share of
// incorrect words and is zero for no rows.
func SummarizeWords(rows []phoneme.WordRow) WordSummary {
	var s WordSummary
	for _, r := range rows {
		s.Words++
		if r.Correct {
			s.Correct++
		} else {
			s.Incorrect++
		}
	}
	if s.Words > 0 {
		s.Rate = float64(s.Incorrect) / float64(s.Words)
	}
	return s
}

// WordTable renders the per-word alignment table, the errors table and the
// word totals.
func WordTable(rows []phoneme.WordRow) string {
	aligned := newTable("Word", "Ground truth (ref)", "Pred (aligned)", "Per-phoneme result")
	errs := newTable("Word", "Correct?", "Error type")
	for _, r := range rows {
		aligned.add(r.Word,
			strings.Join(r.Reference(), " "),
			strings.Join(r.Aligned(), " "),
			PerPhoneme(r))
		mark := "❌"
		if r.Correct {
			mark = "✅"
		}
		errs.add(r.Word, mark, ErrorType(r))
	}

	sum := SummarizeWords(rows)
	var sb strings.Builder
	aligned.writeTo(&sb)
	sb.WriteString("\nErrors:\n")
	errs.writeTo(&sb)
	fmt.Fprintf(&sb, "\nTotal words = %d\nCorrect = %d\nIncorrect = %d\n", sum.Words, sum.Correct, sum.Incorrect)
	if sum.Words > 0 {
		fmt.Fprintf(&sb, "Word error rate = %d / %d = %s\n", sum.Incorrect, sum.Words, Percent(sum.Rate))
	}
	return sb.String()
}

// WordError annotates one word-level edit with how the produced word relates
// to the expected one and to the word bank.
type WordError struct {
	Kind align.Kind `json:"kind"`
	Ref  string     `json:"ref,omitempty"`
	Hyp  string     `json:"hyp,omitempty"`

	// Similarity is set for substitutions only.
	Similarity *phonetic.Similarity `json:"similarity,omitempty"`

	// Nearest is the closest word-bank entry to Hyp, if any matched.
	Nearest      string  `json:"nearest,omitempty"`
	NearestScore float64 `json:"nearest_score,omitempty"`
}

// WordErrors lists the errors of a word-level score. Substitutions are
// compared with m, and every produced word that is not itself in vocab is
// mapped to its nearest vocab entry. A nil m uses default thresholds.
func WordErrors(s metric.Score, vocab []string, m *phonetic.Matcher) []WordError {
	if m == nil {
		m = phonetic.New()
	}
	var out []WordError
	for _, op := range s.Alignment {
		if !op.Kind.IsError() {
			continue
		}
		we := WordError{Kind: op.Kind}
		if op.Ref != align.NoIndex {
			we.Ref = s.Reference[op.Ref]
		}
		if op.Hyp != align.NoIndex {
			we.Hyp = s.Hypothesis[op.Hyp]
		}
		if op.Kind == align.Substitute {
			sim := m.Compare(we.Ref, we.Hyp)
			we.Similarity = &sim
		}
		if we.Hyp != "" && len(vocab) > 0 {
			if w, score, ok := m.Nearest(we.Hyp, vocab); ok && !strings.EqualFold(w, we.Hyp) {
				we.Nearest, we.NearestScore = w, score
			}
		}
		out = append(out, we)
	}
	return out
}

// FormatWordErrors renders errors from [WordErrors] as a table.
func FormatWordErrors(errs []WordError) string {
	t := newTable("Ref", "Hyp", "Type", "Sounds alike", "Nearest word")
	for _, e := range errs {
		ref, hyp := e.Ref, e.Hyp
		if ref == "" {
			ref = phoneme.Gap
		}
		if hyp == "" {
			hyp = phoneme.Gap
		}
		alike := ""
		if e.Similarity != nil {
			alike = "no"
			if e.Similarity.SoundsAlike {
				alike = "yes"
			}
			alike += " (" + strconv.FormatFloat(e.Similarity.JaroWinkler, 'f', 2, 64) + ")"
		}
		nearest := e.Nearest
		if nearest != "" {
			nearest += " (" + strconv.FormatFloat(e.NearestScore, 'f', 2, 64) + ")"
		}
		t.add(ref, hyp, shortKind(e.Kind), alike, nearest)
	}
	return t.String()
}
