// Package engine orchestrates correlation runs: it snapshots the node and
// flow catalogs, fans the flow×node grid out over a bounded worker pool,
// aggregates confidence scores and commits the qualifying set atomically.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"torunveil/internal/config"
	"torunveil/internal/metrics"
	"torunveil/internal/model"
	"torunveil/internal/scoring"
)

// maxSampledErrors caps the error strings carried in a run report. The full
// count is always reported.
const maxSampledErrors = 20

// Runner executes correlation runs over bounded catalog snapshots.
type Runner struct {
	nodes  model.NodeSource
	flows  model.FlowSource
	store  model.CorrelationStore
	ledger model.RunLedger // optional

	weights        model.Weights
	window         time.Duration
	threshold      float64
	concurrency    int
	align          scoring.Alignment
	fetchTimeout   time.Duration
	persistTimeout time.Duration
}

// pair is one cell of the flow×node scoring grid.
type pair struct {
	flow *model.Flow
	node *model.Node
}

// New validates the engine configuration and builds a Runner. Invalid
// weights, a non-positive window or concurrency, or an unknown alignment
// rule all fail fast with a ConfigurationError.
func New(cfg config.EngineConfig, nodes model.NodeSource, flows model.FlowSource, store model.CorrelationStore, ledger model.RunLedger) (*Runner, error) {
	if err := scoring.ValidateWeights(cfg.Weights); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	if cfg.TemporalWindowSeconds <= 0 {
		return nil, &ConfigurationError{Err: fmt.Errorf("temporal_window_seconds must be positive, got %d", cfg.TemporalWindowSeconds)}
	}
	if cfg.MaxConcurrency < 1 {
		return nil, &ConfigurationError{Err: fmt.Errorf("max_concurrency must be at least 1, got %d", cfg.MaxConcurrency)}
	}

	var align scoring.Alignment
	switch cfg.AlignmentRule {
	case config.AlignTruncate:
		align = scoring.AlignTruncate
	case config.AlignPadZero:
		align = scoring.AlignPadZero
	default:
		return nil, &ConfigurationError{Err: fmt.Errorf("unknown fingerprint_alignment_rule %q", cfg.AlignmentRule)}
	}

	fetchTimeout, err := cfg.FetchTimeoutDuration()
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("invalid fetch_timeout: %w", err)}
	}
	persistTimeout, err := cfg.PersistTimeoutDuration()
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("invalid persist_timeout: %w", err)}
	}

	return &Runner{
		nodes:          nodes,
		flows:          flows,
		store:          store,
		ledger:         ledger,
		weights:        cfg.Weights,
		window:         time.Duration(cfg.TemporalWindowSeconds) * time.Second,
		threshold:      cfg.MinConfidenceThreshold,
		concurrency:    cfg.MaxConcurrency,
		align:          align,
		fetchTimeout:   fetchTimeout,
		persistTimeout: persistTimeout,
	}, nil
}

// Run executes one correlation run over a snapshot of nodes and flows taken
// at start. Flows or nodes added mid-run are not visible. A cancelled run
// persists nothing; either the whole qualifying set commits or none of it.
func (r *Runner) Run(ctx context.Context, sinceRunID uuid.UUID) (*model.RunReport, error) {
	report := &model.RunReport{
		RunID:         uuid.New(),
		StartedAt:     time.Now().UTC(),
		Weights:       r.weights,
		WindowSeconds: int(r.window / time.Second),
	}
	log.Printf("Starting correlation run %s", report.RunID)

	nodes, flows, err := r.snapshot(ctx, sinceRunID)
	if err != nil {
		report.FinishedAt = time.Now().UTC()
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return report, err
	}
	report.FlowsProcessed = len(flows)
	metrics.FlowsProcessedTotal.Add(float64(len(flows)))
	log.Printf("Run %s: snapshot has %d flows and %d candidate nodes (%d pairs)",
		report.RunID, len(flows), len(nodes), len(flows)*len(nodes))

	qualifying, scored, skipped, errSamples := r.scoreGrid(ctx, report.RunID, flows, nodes)
	report.PairsScored = scored
	report.ErrorsSkipped = skipped
	report.Errors = errSamples
	metrics.PairsScoredTotal.Add(float64(scored))
	metrics.ScoringErrorsTotal.Add(float64(skipped))

	if err := ctx.Err(); err != nil {
		// Discard everything aggregated so far: a cancelled run must
		// leave no partial rows behind.
		report.FinishedAt = time.Now().UTC()
		metrics.RunsTotal.WithLabelValues("cancelled").Inc()
		log.Printf("Run %s cancelled after scoring %d pairs; nothing persisted", report.RunID, scored)
		return report, err
	}

	if err := r.persist(ctx, report.RunID, qualifying); err != nil {
		report.FinishedAt = time.Now().UTC()
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return report, err
	}
	report.Correlations = len(qualifying)
	metrics.CorrelationsTotal.Add(float64(len(qualifying)))

	if r.ledger != nil {
		if err := r.ledger.RecordRun(ctx, *report, maxFlowID(flows)); err != nil {
			report.FinishedAt = time.Now().UTC()
			metrics.RunsTotal.WithLabelValues("failed").Inc()
			return report, &PersistenceError{Err: fmt.Errorf("recording run: %w", err)}
		}
	}

	report.FinishedAt = time.Now().UTC()
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	log.Printf("Run %s complete: %d flows, %d pairs scored, %d correlations, %d errors skipped",
		report.RunID, report.FlowsProcessed, report.PairsScored, report.Correlations, report.ErrorsSkipped)
	return report, nil
}

// snapshot fetches the bounded node and flow sets for this run. Either fetch
// failing or timing out aborts the run with a DataFeedError.
func (r *Runner) snapshot(ctx context.Context, sinceRunID uuid.UUID) ([]model.Node, []model.Flow, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	rawNodes, err := r.nodes.GuardNodes(fetchCtx)
	if err != nil {
		return nil, nil, &DataFeedError{Feed: "topology", Err: err}
	}

	// The engine only targets guard-eligible nodes, unique by fingerprint.
	seen := make(map[string]struct{}, len(rawNodes))
	nodes := make([]model.Node, 0, len(rawNodes))
	for _, n := range rawNodes {
		if !n.IsGuard {
			continue
		}
		if _, dup := seen[n.Fingerprint]; dup {
			continue
		}
		seen[n.Fingerprint] = struct{}{}
		nodes = append(nodes, n)
	}

	flowCtx, cancelFlows := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancelFlows()

	flows, err := r.flows.UnscoredFlows(flowCtx, sinceRunID)
	if err != nil {
		return nil, nil, &DataFeedError{Feed: "ingestion", Err: err}
	}
	return nodes, flows, nil
}

// scoreGrid evaluates every (flow, node) pair concurrently. Scoring is pure,
// so the qualifying set is identical regardless of execution order. A failed
// pair is skipped and counted; cancellation is observed between tasks.
func (r *Runner) scoreGrid(ctx context.Context, runID uuid.UUID, flows []model.Flow, nodes []model.Node) (qualifying []model.Correlation, scored, skipped int, errSamples []string) {
	pairs := make(chan pair)
	results := make(chan model.Correlation, r.concurrency)

	var mu sync.Mutex // guards scored, skipped, errSamples

	var workers sync.WaitGroup
	workers.Add(r.concurrency)
	for i := 0; i < r.concurrency; i++ {
		go func() {
			defer workers.Done()
			for p := range pairs {
				corr, err := r.scorePair(runID, p)
				mu.Lock()
				if err != nil {
					skipped++
					if len(errSamples) < maxSampledErrors {
						errSamples = append(errSamples, fmt.Sprintf("flow %d × node %s: %v", p.flow.ID, p.node.Fingerprint, err))
					}
					mu.Unlock()
					continue
				}
				scored++
				mu.Unlock()
				if corr.ConfidenceScore >= r.threshold {
					results <- corr
				}
			}
		}()
	}

	var collector sync.WaitGroup
	collector.Add(1)
	go func() {
		defer collector.Done()
		for corr := range results {
			qualifying = append(qualifying, corr)
		}
	}()

feed:
	for fi := range flows {
		for ni := range nodes {
			select {
			case pairs <- pair{flow: &flows[fi], node: &nodes[ni]}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(pairs)
	workers.Wait()
	close(results)
	collector.Wait()

	if ctx.Err() != nil {
		// Partial results are discarded by the caller; drop them here
		// so they cannot leak into a later persist.
		qualifying = nil
	}
	return qualifying, scored, skipped, errSamples
}

// scorePair runs the three scoring functions and the aggregator for one
// (flow, node) cell.
func (r *Runner) scorePair(runID uuid.UUID, p pair) (model.Correlation, error) {
	temporal := scoring.TemporalScore(p.flow.StartTime, p.node.LastSeen, r.window)
	bandwidth := scoring.BandwidthScore(p.flow.Bytes, p.flow.Duration, p.node.BandwidthBytes)

	var pattern float64
	var err error
	if p.node.Reference != nil {
		pattern, err = scoring.PatternScore(p.flow.Fingerprint, *p.node.Reference, r.align)
	} else {
		pattern, err = scoring.SelfSimilarity(p.flow.Fingerprint)
	}
	if err != nil {
		return model.Correlation{}, fmt.Errorf("pattern score: %w", err)
	}

	confidence, err := scoring.Aggregate(temporal, bandwidth, pattern, r.weights)
	if err != nil {
		return model.Correlation{}, fmt.Errorf("aggregate: %w", err)
	}

	return model.Correlation{
		RunID:           runID,
		FlowID:          p.flow.ID,
		NodeFingerprint: p.node.Fingerprint,
		TemporalScore:   temporal,
		BandwidthScore:  bandwidth,
		PatternScore:    pattern,
		ConfidenceScore: confidence,
		Weights:         r.weights,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// persist commits the qualifying set in one all-or-nothing write.
func (r *Runner) persist(ctx context.Context, runID uuid.UUID, qualifying []model.Correlation) error {
	if len(qualifying) == 0 {
		return nil
	}

	persistCtx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	if err := r.store.SaveCorrelations(persistCtx, runID, qualifying); err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}

func maxFlowID(flows []model.Flow) int64 {
	var max int64
	for _, f := range flows {
		if f.ID > max {
			max = f.ID
		}
	}
	return max
}
