package phoneme

import (
	"fmt"
	"strings"

	"github.com/MrWong99/phoneval/pkg/align"
)

// Gap marks the missing side of an insertion or deletion.
const Gap = "∅"

// Cell is one aligned position inside a word. Ref is empty for insertions and
// Hyp is empty for deletions.
type Cell struct {
	Kind align.Kind `json:"kind"`
	Ref  string     `json:"ref,omitempty"`
	Hyp  string     `json:"hyp,omitempty"`
}

// RefOrGap returns the reference phone, or [Gap] for an insertion.
func (c Cell) RefOrGap() string {
	if c.Kind == align.Insert {
		return Gap
	}
	return c.Ref
}

// HypOrGap returns the hypothesis phone, or [Gap] for a deletion.
func (c Cell) HypOrGap() string {
	if c.Kind == align.Delete {
		return Gap
	}
	return c.Hyp
}

// WordRow is the slice of an alignment that belongs to one reference word.
type WordRow struct {
	Word    string `json:"word"`
	Cells   []Cell `json:"cells"`
	Correct bool   `json:"correct"`
}

// Reference returns the word's ground-truth phones.
func (r WordRow) Reference() []string {
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c.Kind != align.Insert {
			out = append(out, c.Ref)
		}
	}
	return out
}

// Aligned returns the hypothesis phones laid out against the reference, with
// [Gap] where a reference phone was deleted.
func (r WordRow) Aligned() []string {
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		out = append(out, c.HypOrGap())
	}
	return out
}

// Errors returns the non-matching cells in order.
func (r WordRow) Errors() []Cell {
	var out []Cell
	for _, c := range r.Cells {
		if c.Kind.IsError() {
			out = append(out, c)
		}
	}
	return out
}

// Counts tallies the row's cells by edit kind.
func (r WordRow) Counts() align.Counts {
	var c align.Counts
	for _, cell := range r.Cells {
		switch cell.Kind {
		case align.Match:
			c.Matches++
		case align.Substitute:
			c.Substitutions++
		case align.Insert:
			c.Insertions++
		case align.Delete:
			c.Deletions++
		}
	}
	return c
}

// GroupByWord assigns every op of a phone alignment to the reference word
// whose span contains it. Insertions belong to the word of the preceding
// reference phone, or to the first word when they lead the alignment.
//
// spans must tile ref exactly: contiguous, non-empty and starting at zero.
// The phones in the returned cells are upper-cased.
func GroupByWord(spans []Span, ops align.Alignment, ref, hyp []string) ([]WordRow, error) {
	if err := ops.Validate(len(ref), len(hyp)); err != nil {
		return nil, fmt.Errorf("phoneme: group by word: %w", err)
	}
	owner, err := spanOwners(spans, len(ref))
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		if len(ops) > 0 {
			return nil, fmt.Errorf("phoneme: group by word: %w: %d ops but no words", align.ErrInvalidSequence, len(ops))
		}
		return nil, nil
	}

	rows := make([]WordRow, len(spans))
	for i, s := range spans {
		rows[i] = WordRow{Word: s.Word, Cells: make([]Cell, 0, s.Len()), Correct: true}
	}

	w := 0
	for _, op := range ops {
		var c Cell
		c.Kind = op.Kind
		if op.Ref != align.NoIndex {
			w = owner[op.Ref]
			c.Ref = strings.ToUpper(ref[op.Ref])
		}
		if op.Hyp != align.NoIndex {
			c.Hyp = strings.ToUpper(hyp[op.Hyp])
		}
		if op.Kind.IsError() {
			rows[w].Correct = false
		}
		rows[w].Cells = append(rows[w].Cells, c)
	}
	return rows, nil
}

// spanOwners maps every reference index to the index of its span.
func spanOwners(spans []Span, refLen int) ([]int, error) {
	owner := make([]int, refLen)
	next := 0
	for i, s := range spans {
		if s.Start != next || s.End <= s.Start {
			return nil, fmt.Errorf("phoneme: %w: span %d (%q) is [%d,%d), expected to start at %d",
				align.ErrInvalidSequence, i, s.Word, s.Start, s.End, next)
		}
		if s.End > refLen {
			return nil, fmt.Errorf("phoneme: %w: span %d (%q) ends at %d beyond %d reference phones",
				align.ErrInvalidSequence, i, s.Word, s.End, refLen)
		}
		for j := s.Start; j < s.End; j++ {
			owner[j] = i
		}
		next = s.End
	}
	if next != refLen {
		return nil, fmt.Errorf("phoneme: %w: spans cover %d of %d reference phones",
			align.ErrInvalidSequence, next, refLen)
	}
	return owner, nil
}
