package scoring

import (
	"errors"
	"math"

	"torunveil/internal/model"
)

// Alignment selects how sequences of mismatched length are reconciled before
// comparison.
type Alignment int

const (
	// AlignTruncate compares only the common prefix of the two sequences.
	AlignTruncate Alignment = iota
	// AlignPadZero zero-extends the shorter sequence to the longer length.
	AlignPadZero
)

// ErrEmptyFingerprint is returned when a flow carries no size sequence to
// score against.
var ErrEmptyFingerprint = errors.New("fingerprint has no packet sizes")

// PatternScore measures the similarity between a flow fingerprint and a
// node-side reference fingerprint. Size sequences are aligned per the rule
// and scored as 1 - sum|a-b| / sum max(|a|,|b|); identical sequences score
// exactly 1.0. When both sides carry inter-arrival gaps, the gap similarity
// is computed the same way and averaged with the size similarity.
func PatternScore(flow, ref model.Fingerprint, rule Alignment) (float64, error) {
	if len(flow.Sizes) == 0 {
		return 0, ErrEmptyFingerprint
	}
	if len(ref.Sizes) == 0 {
		return 0, ErrEmptyFingerprint
	}

	score := similarity(flow.Sizes, ref.Sizes, rule)
	if len(flow.GapsMS) > 0 && len(ref.GapsMS) > 0 {
		score = (score + similarity(flow.GapsMS, ref.GapsMS, rule)) / 2
	}
	return score, nil
}

// SelfSimilarity is the fallback pattern score for nodes without a reference
// fingerprint: a regularity heuristic, 1/(1+CV) over absolute packet sizes,
// where CV is the coefficient of variation. Uniform packet sizes (the
// fixed-cell shape typical of anonymity-network traffic) score near 1;
// highly irregular flows score near 0.
func SelfSimilarity(fp model.Fingerprint) (float64, error) {
	if len(fp.Sizes) == 0 {
		return 0, ErrEmptyFingerprint
	}

	var sum float64
	for _, s := range fp.Sizes {
		sum += math.Abs(float64(s))
	}
	mean := sum / float64(len(fp.Sizes))
	if mean == 0 {
		return 0, ErrEmptyFingerprint
	}

	var sq float64
	for _, s := range fp.Sizes {
		d := math.Abs(float64(s)) - mean
		sq += d * d
	}
	cv := math.Sqrt(sq/float64(len(fp.Sizes))) / mean
	return 1 / (1 + cv), nil
}

// similarity compares two aligned integer sequences, returning a value in
// [0,1] that is 1 exactly when the aligned sequences are identical.
func similarity(a, b []int64, rule Alignment) float64 {
	switch rule {
	case AlignPadZero:
		if len(a) < len(b) {
			a = padZero(a, len(b))
		} else if len(b) < len(a) {
			b = padZero(b, len(a))
		}
	default: // AlignTruncate
		if len(a) > len(b) {
			a = a[:len(b)]
		} else if len(b) > len(a) {
			b = b[:len(a)]
		}
	}

	if len(a) == 0 {
		// Truncation of disjoint-length input against an empty side;
		// nothing comparable remains.
		return 0
	}

	var diff, denom float64
	for i := range a {
		av, bv := math.Abs(float64(a[i])), math.Abs(float64(b[i]))
		diff += math.Abs(float64(a[i]) - float64(b[i]))
		denom += math.Max(av, bv)
	}
	if denom == 0 {
		// Both sequences all-zero: identical by definition.
		return 1
	}

	score := 1 - diff/denom
	if score < 0 {
		return 0
	}
	return score
}

func padZero(s []int64, n int) []int64 {
	out := make([]int64, n)
	copy(out, s)
	return out
}
