// Package scoring contains the pure scoring functions of the correlation
// engine. Every function here is deterministic, side-effect free and safe to
// call from any number of goroutines.
package scoring

import "time"

// TemporalScore scores the proximity of a flow's start time to the node-side
// observation. The score decays linearly from 1.0 at zero offset to 0 at the
// window boundary and stays 0 beyond it. A missing timestamp on either side
// scores 0: absence of timing evidence must never look like evidence.
func TemporalScore(flowStart, nodeLastSeen time.Time, window time.Duration) float64 {
	if window <= 0 || flowStart.IsZero() || nodeLastSeen.IsZero() {
		return 0
	}

	offset := flowStart.Sub(nodeLastSeen)
	if offset < 0 {
		offset = -offset
	}
	if offset >= window {
		return 0
	}
	return 1 - float64(offset)/float64(window)
}
