// Package metrics exports the engine's run counters for Prometheus scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts correlation runs by outcome ("ok", "failed",
	// "cancelled").
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torunveil",
		Name:      "runs_total",
		Help:      "Correlation runs executed, by outcome.",
	}, []string{"outcome"})

	FlowsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "torunveil",
		Name:      "flows_processed_total",
		Help:      "Flows included in run snapshots.",
	})

	PairsScoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "torunveil",
		Name:      "pairs_scored_total",
		Help:      "Flow/node pairs scored successfully.",
	})

	CorrelationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "torunveil",
		Name:      "correlations_total",
		Help:      "Qualifying correlations persisted.",
	})

	ScoringErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "torunveil",
		Name:      "scoring_errors_total",
		Help:      "Flow/node pairs skipped due to scoring errors.",
	})

	FlowsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "torunveil",
		Name:      "flows_ingested_total",
		Help:      "Flows persisted into the catalog by ingestion.",
	})

	NodesCrawledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "torunveil",
		Name:      "nodes_crawled_total",
		Help:      "Node snapshots inserted by the topology crawler.",
	})
)
