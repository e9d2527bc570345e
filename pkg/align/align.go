// Package align computes minimum-edit-distance alignments between two token
// sequences.
//
// The aligner is the single implementation behind every error-rate metric in
// phoneval: word, character and phoneme error rates differ only in how the
// input strings are tokenised before [Align] is called (see package metric).
//
// Costs are the classic Levenshtein costs: a match costs nothing, every
// substitution, insertion and deletion costs one. When several transitions
// reach the same minimum the aligner prefers SUBSTITUTE, then INSERT, then
// DELETE, both while filling the grid and while tracing back, so identical
// inputs always yield identical alignments.
//
// All functions are pure and safe for concurrent use.
package align

import (
	"fmt"
	"strings"
)

// NoIndex marks the side of an [Op] that does not consume a token: the
// hypothesis side of a deletion and the reference side of an insertion.
const NoIndex = -1

// Kind identifies the edit performed by a single [Op].
type Kind uint8

const (
	// Match pairs two equal tokens. It has zero cost.
	Match Kind = iota

	// Substitute pairs a reference token with a different hypothesis token.
	Substitute

	// Insert consumes a hypothesis token that has no reference counterpart.
	Insert

	// Delete consumes a reference token that has no hypothesis counterpart.
	Delete
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Match:
		return "match"
	case Substitute:
		return "substitute"
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText encodes k by name so alignments serialise readably.
func (k Kind) MarshalText() ([]byte, error) {
	if k > Delete {
		return nil, fmt.Errorf("align: cannot marshal unknown kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a name produced by [Kind.MarshalText].
func (k *Kind) UnmarshalText(text []byte) error {
	for c := Match; c <= Delete; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("align: unknown kind %q", text)
}

// IsError reports whether k contributes to the edit distance.
func (k Kind) IsError() bool {
	return k == Substitute || k == Insert || k == Delete
}

// Op is one step of an alignment. Ref and Hyp are indices into the reference
// and hypothesis sequences; the unused side is [NoIndex].
type Op struct {
	Kind Kind `json:"kind"`
	Ref  int  `json:"ref"`
	Hyp  int  `json:"hyp"`
}

// String renders the op as "kind(ref,hyp)" with "-" for a missing index.
func (o Op) String() string {
	idx := func(i int) string {
		if i == NoIndex {
			return "-"
		}
		return fmt.Sprint(i)
	}
	return fmt.Sprintf("%s(%s,%s)", o.Kind, idx(o.Ref), idx(o.Hyp))
}

// Alignment is the ordered edit script that turns the reference into the
// hypothesis. Every reference token is covered by exactly one Match,
// Substitute or Delete op and every hypothesis token by exactly one Match,
// Substitute or Insert op.
type Alignment []Op

// Counts tallies the ops of an alignment by kind.
type Counts struct {
	Matches       int
	Substitutions int
	Insertions    int
	Deletions     int
}

// Errors returns S + I + D.
func (c Counts) Errors() int {
	return c.Substitutions + c.Insertions + c.Deletions
}

// Counts returns the per-kind totals of a.
func (a Alignment) Counts() Counts {
	var c Counts
	for _, op := range a {
		switch op.Kind {
		case Match:
			c.Matches++
		case Substitute:
			c.Substitutions++
		case Insert:
			c.Insertions++
		case Delete:
			c.Deletions++
		}
	}
	return c
}

// Distance returns the number of error ops in a. For an alignment produced
// by [Align] it equals the edit distance.
func (a Alignment) Distance() int {
	return a.Counts().Errors()
}

// String joins the ops with spaces.
func (a Alignment) String() string {
	parts := make([]string, len(a))
	for i, op := range a {
		parts[i] = op.String()
	}
	return strings.Join(parts, " ")
}

// Validate checks that a is a well-formed alignment of a reference of length
// refLen against a hypothesis of length hypLen: indices are in range, each
// side is consumed exactly once and in increasing order, and every op kind
// uses the sides it is supposed to. It returns an error wrapping
// [ErrInvalidSequence] on the first violation.
func (a Alignment) Validate(refLen, hypLen int) error {
	nextRef, nextHyp := 0, 0
	for i, op := range a {
		usesRef := op.Kind != Insert
		usesHyp := op.Kind != Delete
		switch {
		case op.Kind > Delete:
			return fmt.Errorf("%w: op %d has unknown kind %d", ErrInvalidSequence, i, op.Kind)
		case usesRef != (op.Ref != NoIndex):
			return fmt.Errorf("%w: op %d (%s) has reference index %d", ErrInvalidSequence, i, op.Kind, op.Ref)
		case usesHyp != (op.Hyp != NoIndex):
			return fmt.Errorf("%w: op %d (%s) has hypothesis index %d", ErrInvalidSequence, i, op.Kind, op.Hyp)
		}
		if usesRef {
			if op.Ref != nextRef {
				return fmt.Errorf("%w: op %d consumes reference %d, want %d", ErrInvalidSequence, i, op.Ref, nextRef)
			}
			nextRef++
		}
		if usesHyp {
			if op.Hyp != nextHyp {
				return fmt.Errorf("%w: op %d consumes hypothesis %d, want %d", ErrInvalidSequence, i, op.Hyp, nextHyp)
			}
			nextHyp++
		}
	}
	if nextRef != refLen {
		return fmt.Errorf("%w: alignment covers %d of %d reference tokens", ErrInvalidSequence, nextRef, refLen)
	}
	if nextHyp != hypLen {
		return fmt.Errorf("%w: alignment covers %d of %d hypothesis tokens", ErrInvalidSequence, nextHyp, hypLen)
	}
	return nil
}

// Align computes the edit distance between ref and hyp together with one
// minimum-cost alignment. Either sequence may be empty; aligning against an
// empty reference yields len(hyp) insertions.
//
// The full (len(ref)+1) × (len(hyp)+1) grid is kept so the trace can be
// recovered. Use [Distance] when only the number is needed.
func Align[T comparable](ref, hyp []T) (int, Alignment) {
	n, m := len(ref), len(hyp)

	dp := make([][]int, n+1)
	cells := make([]int, (n+1)*(m+1))
	for i := range dp {
		dp[i], cells = cells[:m+1:m+1], cells[m+1:]
		dp[i][0] = i
	}
	for j := 0; j <= m; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if ref[i-1] == hyp[j-1] {
				dp[i][j] = dp[i-1][j-1]
				continue
			}
			dp[i][j] = 1 + min(dp[i-1][j-1], dp[i][j-1], dp[i-1][j]) // sub, ins, del
		}
	}

	ops := make(Alignment, 0, max(n, m))
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1] && dp[i][j] == dp[i-1][j-1]:
			ops = append(ops, Op{Kind: Match, Ref: i - 1, Hyp: j - 1})
			i, j = i-1, j-1
		case i > 0 && j > 0 && dp[i][j] == dp[i-1][j-1]+1:
			ops = append(ops, Op{Kind: Substitute, Ref: i - 1, Hyp: j - 1})
			i, j = i-1, j-1
		case j > 0 && dp[i][j] == dp[i][j-1]+1:
			ops = append(ops, Op{Kind: Insert, Ref: NoIndex, Hyp: j - 1})
			j--
		default:
			ops = append(ops, Op{Kind: Delete, Ref: i - 1, Hyp: NoIndex})
			i--
		}
	}

	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return dp[n][m], ops
}

// Distance returns the edit distance between ref and hyp using two rolling
// rows, so memory is proportional to the shorter sequence. The result is
// always equal to the distance returned by [Align].
func Distance[T comparable](ref, hyp []T) int {
	// Edit distance is symmetric, so iterate over the longer sequence and keep
	// rows sized by the shorter one.
	if len(hyp) > len(ref) {
		ref, hyp = hyp, ref
	}
	m := len(hyp)
	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ref); i++ {
		curr[0] = i
		for j := 1; j <= m; j++ {
			if ref[i-1] == hyp[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = 1 + min(prev[j-1], curr[j-1], prev[j])
		}
		prev, curr = curr, prev
	}
	return prev[m]
}
