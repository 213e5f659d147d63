package scoring

import (
	"testing"
	"time"
)

func TestBandwidthScore_DegenerateInputs(t *testing.T) {
	if score := BandwidthScore(5000, 0, 10000); score != 0 {
		t.Errorf("Expected 0 for zero duration, got %v", score)
	}
	if score := BandwidthScore(5000, 10*time.Second, 0); score != 0 {
		t.Errorf("Expected 0 for zero capacity, got %v", score)
	}
}

func TestBandwidthScore_AmpleHeadroom(t *testing.T) {
	// 5000 bytes over 10s requires 500 B/s; 10000 B/s capacity is 20x
	// headroom, well past saturation.
	score := BandwidthScore(5000, 10*time.Second, 10000)
	if score != 1.0 {
		t.Errorf("Expected saturated score 1.0, got %v", score)
	}
}

func TestBandwidthScore_Infeasible(t *testing.T) {
	// 500 B/s required against 1 B/s capacity.
	score := BandwidthScore(5000, 10*time.Second, 1)
	if score > 0.01 {
		t.Errorf("Expected near-zero score for infeasible node, got %v", score)
	}
	if score < 0 {
		t.Errorf("Score must not go negative, got %v", score)
	}
}

func TestBandwidthScore_MonotonicInCapacity(t *testing.T) {
	prev := -1.0
	for _, capacity := range []uint64{1, 100, 500, 1000, 2000, 100000} {
		score := BandwidthScore(5000, 10*time.Second, capacity)
		if score < prev {
			t.Fatalf("Score decreased to %v at capacity %d", score, capacity)
		}
		if score < 0 || score > 1 {
			t.Fatalf("Score %v out of range at capacity %d", score, capacity)
		}
		prev = score
	}
}

func TestBandwidthScore_ZeroByteFlow(t *testing.T) {
	if score := BandwidthScore(0, 10*time.Second, 100); score != 1.0 {
		t.Errorf("Expected 1.0 for zero-byte flow, got %v", score)
	}
}
