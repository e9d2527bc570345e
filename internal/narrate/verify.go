package narrate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// percentPattern matches a quoted percentage such as "63.3%" or "50 %".
var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

// tolerance absorbs rounding when the model quotes fewer decimals than the
// report ("63%" for 63.3%).
const tolerance = 0.5

// Verify checks every percentage quoted in text against rates. A quoted value
// is accepted when it is within half a percentage point of some rate or of
// its complement (an accuracy of 36.7% for a 63.3% error rate). All
// mismatches are reported in one error wrapping [ErrInconsistentNarration].
//
// With no rates, any quoted percentage is a mismatch.
func Verify(text string, rates []Rate) error {
	var bad []string
	for _, m := range percentPattern.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			bad = append(bad, m[0])
			continue
		}
		if !matchesAny(v, rates) {
			bad = append(bad, m[0])
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: quoted %s, computed %s", ErrInconsistentNarration,
			strings.Join(bad, ", "), formatRates(rates))
	}
	return nil
}

func matchesAny(pct float64, rates []Rate) bool {
	for _, r := range rates {
		want := r.Value * 100
		if math.Abs(pct-want) <= tolerance || math.Abs(pct-(100-want)) <= tolerance {
			return true
		}
	}
	return false
}

func formatRates(rates []Rate) string {
	if len(rates) == 0 {
		return "none"
	}
	parts := make([]string, len(rates))
	for i, r := range rates {
		parts[i] = fmt.Sprintf("%s=%.1f%%", r.Name, r.Value*100)
	}
	return strings.Join(parts, " ")
}
