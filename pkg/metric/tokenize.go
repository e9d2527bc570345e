package metric

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/phoneval/pkg/align"
)

// Tokenizer splits a transcript into comparable tokens.
type Tokenizer func(s string) []string

// normalize applies NFC composition and lower-casing. Every tokenizer runs
// its input through normalize first, so equality is case-insensitive and
// independent of how accented characters were encoded.
func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Words splits s on runs of white space.
func Words(s string) []string {
	return strings.Fields(normalize(s))
}

// Chars splits s into single-rune tokens. White space is kept, so the
// character error rate also counts missing or extra word breaks.
func Chars(s string) []string {
	s = normalize(s)
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Phonemes splits a space-separated phone string (e.g. "AH B AW T") into
// phone symbols.
func Phonemes(s string) []string {
	return strings.Fields(normalize(s))
}

// TokenizerFor returns the tokenizer that backs kind.
func TokenizerFor(kind Kind) (Tokenizer, error) {
	switch kind {
	case WER:
		return Words, nil
	case CER:
		return Chars, nil
	case PER:
		return Phonemes, nil
	default:
		return nil, fmt.Errorf("metric: unknown kind %q", string(kind))
	}
}

// Tokenize validates s and splits it with the tokenizer for kind. Text that is
// not valid UTF-8 is rejected with [align.ErrInvalidSequence].
func Tokenize(kind Kind, s string) ([]string, error) {
	tok, err := TokenizerFor(kind)
	if err != nil {
		return nil, err
	}
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("metric: %w: input is not valid UTF-8", align.ErrInvalidSequence)
	}
	return tok(s), nil
}
