package scoring

import (
	"fmt"
	"math"

	"torunveil/internal/model"
)

const weightSumTolerance = 1e-9

// ValidateWeights checks that every weight is within [0,1] and that the
// three weights sum to exactly 1.0 (within floating point tolerance).
// Invalid weights are a configuration error: they are rejected, never
// silently renormalized.
func ValidateWeights(w model.Weights) error {
	for name, v := range map[string]float64{
		"temporal":  w.Temporal,
		"bandwidth": w.Bandwidth,
		"pattern":   w.Pattern,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("weight %q out of range: %v", name, v)
		}
	}

	sum := w.Temporal + w.Bandwidth + w.Pattern
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// Aggregate combines the three component scores into a single confidence
// value via a weighted linear combination, clamped to [0,1].
func Aggregate(temporal, bandwidth, pattern float64, w model.Weights) (float64, error) {
	if err := ValidateWeights(w); err != nil {
		return 0, err
	}

	confidence := temporal*w.Temporal + bandwidth*w.Bandwidth + pattern*w.Pattern
	if confidence < 0 || math.IsNaN(confidence) {
		return 0, nil
	}
	if confidence > 1 {
		return 1, nil
	}
	return confidence, nil
}
