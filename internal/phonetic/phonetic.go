// Package phonetic scores how close a misread word is to the word the child
// was asked to read, using Double Metaphone encoding and Jaro-Winkler string
// similarity.
//
// Word-level error rates treat "fro" and "dog" as equally wrong stand-ins for
// "from". A [Matcher] tells them apart: two words "sound alike" when their
// Double Metaphone codes overlap and their Jaro-Winkler similarity reaches the
// phonetic threshold (default 0.70), or, without a code overlap, when the
// similarity alone reaches the fuzzy threshold (default 0.85).
//
// [Matcher.Nearest] maps an out-of-bank hypothesis word onto the closest
// word-bank entry with the same two-stage rule.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for words whose
// phonetic codes overlap. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for words without a
// phonetic code overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher compares words by sound and spelling. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Similarity describes how a hypothesis word relates to a reference word.
type Similarity struct {
	// JaroWinkler is the case-insensitive Jaro-Winkler similarity in [0, 1].
	JaroWinkler float64 `json:"jaro_winkler"`

	// Levenshtein is the character edit distance between the lower-cased words.
	Levenshtein int `json:"levenshtein"`

	// PhoneticOverlap is true when the words share a Double Metaphone code.
	PhoneticOverlap bool `json:"phonetic_overlap"`

	// SoundsAlike applies the matcher's thresholds to the fields above.
	SoundsAlike bool `json:"sounds_alike"`
}

// Compare scores hyp against ref.
func (m *Matcher) Compare(ref, hyp string) Similarity {
	r := strings.ToLower(strings.TrimSpace(ref))
	h := strings.ToLower(strings.TrimSpace(hyp))
	if r == "" || h == "" {
		return Similarity{Levenshtein: len([]rune(r)) + len([]rune(h))}
	}

	s := Similarity{
		JaroWinkler:     matchr.JaroWinkler(r, h, false),
		Levenshtein:     matchr.Levenshtein(r, h),
		PhoneticOverlap: codesOverlap(codes(r), codes(h)),
	}
	s.SoundsAlike = m.accept(s.JaroWinkler, s.PhoneticOverlap)
	return s
}

func (m *Matcher) accept(jw float64, phonetic bool) bool {
	if phonetic {
		return jw >= m.phoneticThreshold
	}
	return jw >= m.fuzzyThreshold
}

// Nearest returns the vocabulary entry closest to word. Entries with a
// phonetic code overlap win over purely fuzzy ones; among equals the higher
// Jaro-Winkler score wins, then the earlier entry. When nothing passes the
// thresholds, matched is false, nearest is word and score is 0.
func (m *Matcher) Nearest(word string, vocab []string) (nearest string, score float64, matched bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" || len(vocab) == 0 {
		return word, 0, false
	}
	wordCodes := codes(w)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, entry := range vocab {
		e := strings.ToLower(strings.TrimSpace(entry))
		if e == "" {
			continue
		}
		if e == w {
			return entry, 1, true
		}
		jw := matchr.JaroWinkler(w, e, false)
		phonetic := codesOverlap(wordCodes, codes(e))
		if !m.accept(jw, phonetic) {
			continue
		}
		switch {
		case best == "":
		case phonetic && !bestPhonetic:
		case phonetic == bestPhonetic && jw > bestScore:
		default:
			continue
		}
		best, bestScore, bestPhonetic = entry, jw, phonetic
	}

	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// codes returns the non-empty Double Metaphone codes of a single word.
func codes(word string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		out[p] = struct{}{}
	}
	if s != "" {
		out[s] = struct{}{}
	}
	return out
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
