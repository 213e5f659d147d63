package model

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Node is a candidate entry point into the anonymity network, as observed by
// the topology crawler. Rows are append-only: each crawl inserts a fresh
// snapshot rather than mutating the previous one.
type Node struct {
	Fingerprint    string // stable relay identity, unique per snapshot
	Nickname       string
	Address        net.IP
	Port           uint16
	BandwidthBytes uint64 // observed capacity, bytes/sec
	CountryCode    string
	ASName         string
	IsGuard        bool
	IsExit         bool
	Running        bool
	LastSeen       time.Time
	CrawledAt      time.Time

	// Reference is an optional traffic-class fingerprint associated with the
	// node. When nil, pattern scoring falls back to a self-regularity check.
	Reference *Fingerprint
}

// Fingerprint is the timing/size signature of a flow: packet sizes signed by
// direction (client→remote positive) and inter-arrival gaps in milliseconds.
type Fingerprint struct {
	Sizes  []int64
	GapsMS []int64
}

// Equal reports whether two fingerprints are identical element for element.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if len(f.Sizes) != len(other.Sizes) || len(f.GapsMS) != len(other.GapsMS) {
		return false
	}
	for i := range f.Sizes {
		if f.Sizes[i] != other.Sizes[i] {
			return false
		}
	}
	for i := range f.GapsMS {
		if f.GapsMS[i] != other.GapsMS[i] {
			return false
		}
	}
	return true
}

// Flow is one extracted traffic observation. Immutable once ingested.
type Flow struct {
	ID          int64
	CaptureFile string
	SrcIP       net.IP
	SrcPort     uint16
	DstIP       net.IP
	DstPort     uint16
	Protocol    string
	StartTime   time.Time
	Duration    time.Duration
	Bytes       uint64
	Packets     uint64
	Fingerprint Fingerprint
}

// Weights is the confidence aggregation configuration. The three components
// must sum to 1.0.
type Weights struct {
	Temporal  float64 `yaml:"temporal"`
	Bandwidth float64 `yaml:"bandwidth"`
	Pattern   float64 `yaml:"pattern"`
}

// Correlation is one scored hypothesis linking a flow to a node. Records are
// append-only and scoped by the run that produced them.
type Correlation struct {
	RunID           uuid.UUID
	FlowID          int64
	NodeFingerprint string
	TemporalScore   float64
	BandwidthScore  float64
	PatternScore    float64
	ConfidenceScore float64
	Weights         Weights
	CreatedAt       time.Time
}

// RunReport is the structured outcome of a single correlation run.
type RunReport struct {
	RunID          uuid.UUID
	StartedAt      time.Time
	FinishedAt     time.Time
	FlowsProcessed int
	PairsScored    int
	Correlations   int
	ErrorsSkipped  int
	Errors         []string
	Weights        Weights
	WindowSeconds  int
}
