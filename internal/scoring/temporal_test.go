package scoring

import (
	"testing"
	"time"
)

func TestTemporalScore_PerfectAlignment(t *testing.T) {
	now := time.Now()
	score := TemporalScore(now, now, 5*time.Minute)
	if score != 1.0 {
		t.Errorf("Expected score 1.0 at zero offset, got %v", score)
	}
}

func TestTemporalScore_MonotonicDecay(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	prev := 1.1
	for offset := time.Duration(0); offset <= window; offset += 30 * time.Second {
		score := TemporalScore(base.Add(offset), base, window)
		if score > prev {
			t.Fatalf("Score increased from %v to %v at offset %s", prev, score, offset)
		}
		if score < 0 || score > 1 {
			t.Fatalf("Score %v out of range at offset %s", score, offset)
		}
		prev = score
	}
}

func TestTemporalScore_ZeroBeyondWindow(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	for _, offset := range []time.Duration{window, window + time.Second, 24 * time.Hour} {
		if score := TemporalScore(base.Add(offset), base, window); score != 0 {
			t.Errorf("Expected 0 at offset %s, got %v", offset, score)
		}
	}
}

func TestTemporalScore_SymmetricOffset(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	before := TemporalScore(base.Add(-time.Minute), base, window)
	after := TemporalScore(base.Add(time.Minute), base, window)
	if before != after {
		t.Errorf("Expected symmetric scores, got %v and %v", before, after)
	}
}

func TestTemporalScore_FailClosed(t *testing.T) {
	now := time.Now()
	window := 5 * time.Minute

	if score := TemporalScore(time.Time{}, now, window); score != 0 {
		t.Errorf("Expected 0 for missing flow timestamp, got %v", score)
	}
	if score := TemporalScore(now, time.Time{}, window); score != 0 {
		t.Errorf("Expected 0 for missing node timestamp, got %v", score)
	}
	if score := TemporalScore(now, now, 0); score != 0 {
		t.Errorf("Expected 0 for zero window, got %v", score)
	}
}
