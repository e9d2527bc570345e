// Package phoneme provides the ARPAbet phone inventory, a word-to-phones
// lexicon, and grouping of a phone-level alignment back into the words that
// produced the reference.
//
// Reading tasks are scored at the phone level, but results are reported per
// word: "from" was read as "F AH N" rather than "F R AH M". [Lexicon.Reference]
// expands a word list into the reference phone stream and records which
// phones belong to which word; [GroupByWord] uses those spans to slice an
// alignment into per-word rows.
package phoneme

import (
	"slices"
	"strings"
)

// Phones is the 39-symbol CMU ARPAbet inventory in canonical upper case.
var Phones = []string{
	"AA", "AE", "AH", "AO", "AW", "AY",
	"B", "CH", "D", "DH",
	"EH", "ER", "EY",
	"F", "G", "HH",
	"IH", "IY",
	"JH", "K", "L", "M", "N", "NG",
	"OW", "OY",
	"P", "R", "S", "SH", "T", "TH",
	"UH", "UW",
	"V", "W", "Y", "Z", "ZH",
}

var vowels = map[string]struct{}{
	"AA": {}, "AE": {}, "AH": {}, "AO": {}, "AW": {}, "AY": {},
	"EH": {}, "ER": {}, "EY": {},
	"IH": {}, "IY": {},
	"OW": {}, "OY": {},
	"UH": {}, "UW": {},
}

// Normalize returns the canonical form of a phone symbol: upper case with
// any trailing CMU stress digit removed ("ah0" → "AH").
func Normalize(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	return strings.TrimRight(p, "012")
}

// NormalizeString normalises every ARPAbet phone in the space-separated
// string s and joins the result with single spaces. Tokens that are not
// phones are kept verbatim so that scoring still counts them.
func NormalizeString(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if IsPhone(f) {
			fields[i] = Normalize(f)
		}
	}
	return strings.Join(fields, " ")
}

// IsPhone reports whether p is an ARPAbet phone after normalisation.
func IsPhone(p string) bool {
	_, found := slices.BinarySearch(sortedPhones, Normalize(p))
	return found
}

// IsVowel reports whether p is an ARPAbet vowel after normalisation.
func IsVowel(p string) bool {
	_, ok := vowels[Normalize(p)]
	return ok
}

// Unknown returns the symbols in phones that are not ARPAbet phones, in
// order of first appearance.
func Unknown(phones []string) []string {
	var out []string
	for _, p := range phones {
		if !IsPhone(p) && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

var sortedPhones = func() []string {
	s := slices.Clone(Phones)
	slices.Sort(s)
	return s
}()
