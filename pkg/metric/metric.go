// Package metric turns transcripts into word, character and phoneme error
// rates.
//
// The three metrics share one aligner ([align.Align]) and differ only in the
// tokenizer applied to the reference and hypothesis strings:
//
//   - WER splits on white space and compares words.
//   - CER compares single characters, white space included.
//   - PER splits a space-separated phone string and compares phones.
//
// All tokenizers lower-case their input, so "AH B" and "ah b" are equal.
package metric

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/phoneval/pkg/align"
)

// Kind names an error-rate metric.
type Kind string

const (
	WER Kind = "wer"
	CER Kind = "cer"
	PER Kind = "per"
)

// Kinds lists every supported metric in a stable order.
var Kinds = []Kind{WER, CER, PER}

// IsValid reports whether k is a recognised metric.
func (k Kind) IsValid() bool {
	switch k {
	case WER, CER, PER:
		return true
	}
	return false
}

// ParseKind parses a metric name case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("metric: unknown kind %q; valid values: wer, cer, per", s)
	}
	return k, nil
}

// Score is the result of comparing one reference with one hypothesis.
type Score struct {
	// Kind is the metric that produced this score.
	Kind Kind `json:"kind"`

	// Reference and Hypothesis are the normalised token sequences the
	// alignment indexes into.
	Reference  []string `json:"reference"`
	Hypothesis []string `json:"hypothesis"`

	// Distance is the edit distance S + I + D.
	Distance int `json:"distance"`

	// Rate is Distance / len(Reference). It is zero and meaningless when the
	// reference is empty; Compute reports that case as an error.
	Rate float64 `json:"rate"`

	// Counts breaks Distance down by edit kind.
	Counts align.Counts `json:"counts"`

	// Alignment is the edit script from Reference to Hypothesis.
	Alignment align.Alignment `json:"alignment"`
}

// RefLen returns the number of reference tokens.
func (s Score) RefLen() int { return len(s.Reference) }

// Compute tokenises reference and hypothesis for kind and aligns them.
//
// When the reference is empty the returned Score still carries the distance
// and alignment (all insertions) together with an error wrapping
// [align.ErrEmptyReference].
func Compute(kind Kind, reference, hypothesis string) (Score, error) {
	ref, err := Tokenize(kind, reference)
	if err != nil {
		return Score{}, fmt.Errorf("metric: reference: %w", err)
	}
	hyp, err := Tokenize(kind, hypothesis)
	if err != nil {
		return Score{}, fmt.Errorf("metric: hypothesis: %w", err)
	}
	return ComputeTokens(kind, ref, hyp)
}

// ComputeTokens aligns already-tokenised sequences. The caller is responsible
// for normalising them consistently.
func ComputeTokens(kind Kind, ref, hyp []string) (Score, error) {
	rate, distance, ops, err := align.Rate(ref, hyp)
	s := Score{
		Kind:       kind,
		Reference:  ref,
		Hypothesis: hyp,
		Distance:   distance,
		Rate:       rate,
		Counts:     ops.Counts(),
		Alignment:  ops,
	}
	if err != nil {
		return s, fmt.Errorf("metric: %s: %w", kind, err)
	}
	return s, nil
}

// ComputeWER returns the word error rate of hypothesis against reference.
func ComputeWER(reference, hypothesis string) (Score, error) {
	return Compute(WER, reference, hypothesis)
}

// ComputeCER returns the character error rate of hypothesis against reference.
func ComputeCER(reference, hypothesis string) (Score, error) {
	return Compute(CER, reference, hypothesis)
}

// ComputePER returns the phoneme error rate of hypothesis against reference.
func ComputePER(reference, hypothesis string) (Score, error) {
	return Compute(PER, reference, hypothesis)
}

// Corpus accumulates scores into a micro-averaged corpus rate: the sum of all
// distances divided by the sum of all reference lengths. The zero value is
// ready to use. Corpus is not safe for concurrent use.
type Corpus struct {
	Kind     Kind         `json:"kind"`
	Samples  int          `json:"samples"`
	Skipped  int          `json:"skipped"`
	Distance int          `json:"distance"`
	RefLen   int          `json:"ref_len"`
	Counts   align.Counts `json:"counts"`
}

// Add folds s into the aggregate. Scores with an empty reference are counted
// as skipped and do not affect the rate.
func (c *Corpus) Add(s Score) {
	if c.Kind == "" {
		c.Kind = s.Kind
	}
	if s.RefLen() == 0 {
		c.Skipped++
		return
	}
	c.Samples++
	c.Distance += s.Distance
	c.RefLen += s.RefLen()
	c.Counts.Matches += s.Counts.Matches
	c.Counts.Substitutions += s.Counts.Substitutions
	c.Counts.Insertions += s.Counts.Insertions
	c.Counts.Deletions += s.Counts.Deletions
}

// Rate returns the corpus error rate, failing with [align.ErrEmptyReference]
// when no sample contributed reference tokens.
func (c *Corpus) Rate() (float64, error) {
	return align.ErrorRate(c.Distance, c.RefLen)
}

// IsEmptyReference reports whether err stems from an empty reference.
func IsEmptyReference(err error) bool {
	return errors.Is(err, align.ErrEmptyReference)
}
