package align

import (
	"errors"
	"fmt"
)

// ErrEmptyReference is returned when an error rate is requested against a
// zero-length reference. The rate is undefined in that case; callers decide
// whether to skip the sample, report it separately, or abort.
var ErrEmptyReference = errors.New("align: empty reference sequence")

// ErrInvalidSequence is returned for inputs that are not usable token
// sequences, such as negative lengths, malformed text, or an alignment whose
// indices do not cover its sequences.
var ErrInvalidSequence = errors.New("align: invalid token sequence")

// ErrorRate returns distance / refLen. It fails with [ErrEmptyReference] when
// refLen is zero and never substitutes a default value. The result has no
// upper bound: insertions can push it above 1.
func ErrorRate(distance, refLen int) (float64, error) {
	if distance < 0 || refLen < 0 {
		return 0, fmt.Errorf("%w: distance %d, reference length %d", ErrInvalidSequence, distance, refLen)
	}
	if refLen == 0 {
		return 0, ErrEmptyReference
	}
	return float64(distance) / float64(refLen), nil
}

// Rate aligns ref and hyp and returns the resulting error rate together with
// the distance and alignment. The distance and alignment are returned even
// when the rate fails with [ErrEmptyReference].
func Rate[T comparable](ref, hyp []T) (float64, int, Alignment, error) {
	distance, ops := Align(ref, hyp)
	rate, err := ErrorRate(distance, len(ref))
	return rate, distance, ops, err
}
