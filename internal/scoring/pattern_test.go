package scoring

import (
	"testing"

	"torunveil/internal/model"
)

func TestPatternScore_ExactMatch(t *testing.T) {
	fp := model.Fingerprint{
		Sizes:  []int64{514, -514, 514, 514, -514},
		GapsMS: []int64{10, 12, 9, 11},
	}
	score, err := PatternScore(fp, fp, AlignTruncate)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Errorf("Expected 1.0 for identical fingerprints, got %v", score)
	}
}

func TestPatternScore_MismatchBelowOne(t *testing.T) {
	flow := model.Fingerprint{Sizes: []int64{514, -514, 514}}
	ref := model.Fingerprint{Sizes: []int64{514, -514, 1200}}

	score, err := PatternScore(flow, ref, AlignTruncate)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if score >= 1.0 || score < 0 {
		t.Errorf("Expected score in [0,1) for mismatch, got %v", score)
	}
}

func TestPatternScore_MismatchedLengths(t *testing.T) {
	flow := model.Fingerprint{Sizes: []int64{514, -514, 514, 514}}
	ref := model.Fingerprint{Sizes: []int64{514, -514}}

	for _, rule := range []Alignment{AlignTruncate, AlignPadZero} {
		score, err := PatternScore(flow, ref, rule)
		if err != nil {
			t.Fatalf("Rule %v: unexpected error: %v", rule, err)
		}
		if score < 0 || score > 1 {
			t.Errorf("Rule %v: score %v out of range", rule, score)
		}
	}

	// Truncation sees only the matching prefix; padding sees the missing
	// tail as zeros. The two rules must disagree here.
	trunc, _ := PatternScore(flow, ref, AlignTruncate)
	pad, _ := PatternScore(flow, ref, AlignPadZero)
	if trunc != 1.0 {
		t.Errorf("Expected truncate rule to score matching prefix 1.0, got %v", trunc)
	}
	if pad >= trunc {
		t.Errorf("Expected pad-zero score (%v) below truncate score (%v)", pad, trunc)
	}
}

func TestPatternScore_EmptyFingerprint(t *testing.T) {
	ref := model.Fingerprint{Sizes: []int64{514}}

	if _, err := PatternScore(model.Fingerprint{}, ref, AlignTruncate); err == nil {
		t.Error("Expected error for empty flow fingerprint")
	}
	if _, err := PatternScore(ref, model.Fingerprint{}, AlignTruncate); err == nil {
		t.Error("Expected error for empty reference fingerprint")
	}
}

func TestPatternScore_GapsAveraged(t *testing.T) {
	flow := model.Fingerprint{Sizes: []int64{514, -514}, GapsMS: []int64{10, 10}}
	ref := model.Fingerprint{Sizes: []int64{514, -514}, GapsMS: []int64{100, 100}}

	score, err := PatternScore(flow, ref, AlignTruncate)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// Sizes match perfectly, gaps do not; the average must sit strictly
	// between the two component similarities.
	if score >= 1.0 || score <= 0.5-1e-9 {
		t.Errorf("Expected averaged score in (0.5, 1), got %v", score)
	}
}

func TestSelfSimilarity_UniformSizes(t *testing.T) {
	fp := model.Fingerprint{Sizes: []int64{514, -514, 514, -514, 514}}
	score, err := SelfSimilarity(fp)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Errorf("Expected 1.0 for uniform cell sizes, got %v", score)
	}
}

func TestSelfSimilarity_IrregularBelowUniform(t *testing.T) {
	uniform := model.Fingerprint{Sizes: []int64{514, 514, 514, 514}}
	irregular := model.Fingerprint{Sizes: []int64{40, 1500, 60, 900}}

	us, _ := SelfSimilarity(uniform)
	is, err := SelfSimilarity(irregular)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if is >= us {
		t.Errorf("Expected irregular flow (%v) to score below uniform flow (%v)", is, us)
	}
	if is < 0 || is > 1 {
		t.Errorf("Score %v out of range", is)
	}
}

func TestSelfSimilarity_Empty(t *testing.T) {
	if _, err := SelfSimilarity(model.Fingerprint{}); err == nil {
		t.Error("Expected error for empty fingerprint")
	}
}
