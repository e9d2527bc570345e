package phoneme

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ErrUnknownWord is returned when a word has no lexicon entry.
var ErrUnknownWord = errors.New("phoneme: word not in lexicon")

//go:embed default.yaml
var defaultLexicon []byte

// Lexicon maps lower-case words to their canonical phone sequences.
// A Lexicon is read-only after construction and safe for concurrent use.
type Lexicon struct {
	entries map[string][]string
}

// Default returns the built-in lexicon covering the word reading bank and
// the 26 letter names.
func Default() *Lexicon { return loadDefault() }

var loadDefault = sync.OnceValue(func() *Lexicon {
	lex, err := LoadLexicon(bytes.NewReader(defaultLexicon))
	if err != nil {
		panic(fmt.Sprintf("phoneme: built-in lexicon: %v", err))
	}
	return lex
})

// LoadLexiconFile reads a YAML lexicon from path.
func LoadLexiconFile(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("phoneme: open lexicon %q: %w", path, err)
	}
	defer f.Close()
	return LoadLexicon(f)
}

// LoadLexicon decodes a YAML mapping of word to space-separated phones:
//
//	about: AH B AW T
//	from: F R AH M
//
// Words are lower-cased and phones normalised. Every unknown phone symbol is
// reported; the lexicon is rejected if any entry is invalid.
func LoadLexicon(r io.Reader) (*Lexicon, error) {
	var raw map[string]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("phoneme: decode lexicon: %w", err)
	}

	lex := &Lexicon{entries: make(map[string][]string, len(raw))}
	var errs []error
	for _, word := range slices.Sorted(maps.Keys(raw)) {
		key := strings.ToLower(strings.TrimSpace(word))
		if key == "" {
			errs = append(errs, errors.New("phoneme: lexicon contains an empty word"))
			continue
		}
		if _, dup := lex.entries[key]; dup {
			errs = append(errs, fmt.Errorf("phoneme: word %q listed twice", key))
			continue
		}
		phones := strings.Fields(raw[word])
		if len(phones) == 0 {
			errs = append(errs, fmt.Errorf("phoneme: word %q has no pronunciation", key))
			continue
		}
		if bad := Unknown(phones); len(bad) > 0 {
			errs = append(errs, fmt.Errorf("phoneme: word %q: unknown phones %v", key, bad))
			continue
		}
		for i, p := range phones {
			phones[i] = Normalize(p)
		}
		lex.entries[key] = phones
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return lex, nil
}

// Len returns the number of words in the lexicon.
func (l *Lexicon) Len() int { return len(l.entries) }

// Words returns the lexicon's words in sorted order.
func (l *Lexicon) Words() []string {
	return slices.Sorted(maps.Keys(l.entries))
}

// Pronounce returns the phones for word. The lookup is case-insensitive.
func (l *Lexicon) Pronounce(word string) ([]string, bool) {
	p, ok := l.entries[strings.ToLower(strings.TrimSpace(word))]
	return slices.Clone(p), ok
}

// Span marks the reference phones [Start, End) that belong to Word.
type Span struct {
	Word  string `json:"word"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Len returns the number of phones in the span.
func (s Span) Len() int { return s.End - s.Start }

// Reference is a ground-truth phone stream together with the word spans
// that produced it.
type Reference struct {
	Phones []string `json:"phones"`
	Spans  []Span   `json:"spans"`
}

// String joins the reference phones with single spaces.
func (r Reference) String() string { return strings.Join(r.Phones, " ") }

// Reference expands words into the concatenated phone stream. All words
// missing from the lexicon are reported in one error wrapping
// [ErrUnknownWord].
func (l *Lexicon) Reference(words []string) (Reference, error) {
	var (
		ref     Reference
		missing []string
	)
	for _, w := range words {
		phones, ok := l.Pronounce(w)
		if !ok {
			missing = append(missing, w)
			continue
		}
		start := len(ref.Phones)
		ref.Phones = append(ref.Phones, phones...)
		ref.Spans = append(ref.Spans, Span{Word: w, Start: start, End: len(ref.Phones)})
	}
	if len(missing) > 0 {
		return Reference{}, fmt.Errorf("%w: %s", ErrUnknownWord, strings.Join(missing, ", "))
	}
	return ref, nil
}

// SplitWords splits a word bank such as "about, from, not" or "H B U" on
// commas and white space.
func SplitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
}
