package scoring

import "time"

// saturationHeadroom is the capacity/throughput ratio at which the bandwidth
// score saturates at 1.0. A node carrying the flow at 2x headroom is treated
// as fully feasible.
const saturationHeadroom = 2.0

// BandwidthScore scores the feasibility of a node carrying a flow, comparing
// the flow's required throughput (bytes over duration) against the node's
// observed capacity. The mapping is min(1, ratio/2) where ratio is
// capacity/required: proportional below 2x headroom, saturated above it.
// Zero capacity or zero duration is degenerate and scores 0.
func BandwidthScore(flowBytes uint64, duration time.Duration, capacityBytesPerSec uint64) float64 {
	if duration <= 0 || capacityBytesPerSec == 0 {
		return 0
	}
	required := float64(flowBytes) / duration.Seconds()
	if required <= 0 {
		// A flow that moved no bytes is trivially feasible for any
		// running node.
		return 1
	}

	ratio := float64(capacityBytesPerSec) / required
	score := ratio / saturationHeadroom
	if score > 1 {
		return 1
	}
	return score
}
