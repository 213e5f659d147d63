package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NodeSource provides the guard-eligible node snapshot for a run. Uniqueness
// by fingerprint is required; ordering is not.
type NodeSource interface {
	GuardNodes(ctx context.Context) ([]Node, error)
}

// FlowSource provides the flows not yet covered by a previous run. Passing
// uuid.Nil as sinceRunID returns every flow in the catalog.
type FlowSource interface {
	UnscoredFlows(ctx context.Context, sinceRunID uuid.UUID) ([]Flow, error)
}

// CorrelationStore persists the qualifying set of a run. The write must be
// all-or-nothing: a failed or cancelled run leaves no rows behind.
type CorrelationStore interface {
	SaveCorrelations(ctx context.Context, runID uuid.UUID, correlations []Correlation) error
}

// RunLedger records completed runs so later runs can resume from a previous
// run's high-water flow id.
type RunLedger interface {
	RecordRun(ctx context.Context, report RunReport, maxFlowID int64) error
}

// Filter narrows correlation queries on the reporting surface.
type Filter struct {
	MinConfidence   float64
	NodeFingerprint string
	From            time.Time
	To              time.Time
	Limit           int
	Offset          int
}

// RunSummary aggregates the stored results of one run.
type RunSummary struct {
	RunID         uuid.UUID
	Count         uint64
	AvgConfidence float64
}

// CorrelationQuerier is the read-only surface consumed by reporting and the
// dashboard. Results are ordered by confidence descending, then insert time.
type CorrelationQuerier interface {
	List(ctx context.Context, f Filter) ([]Correlation, error)
	Summary(ctx context.Context, runID uuid.UUID) (RunSummary, error)
}
