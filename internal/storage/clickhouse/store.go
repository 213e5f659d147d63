// Package clickhouse implements the append-only correlation store. Each run
// commits its qualifying set as a single batch; rows are never updated or
// deleted, preserving the chain of evidence across runs.
package clickhouse

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"torunveil/internal/config"
	"torunveil/internal/model"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS correlation_results (
    RunID           UUID,
    FlowID          Int64,
    NodeFingerprint String,
    TemporalScore   Float64,
    BandwidthScore  Float64,
    PatternScore    Float64,
    ConfidenceScore Float64,
    WeightTemporal  Float64,
    WeightBandwidth Float64,
    WeightPattern   Float64,
    CreatedAt       DateTime64(3)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(CreatedAt)
ORDER BY (RunID, ConfidenceScore, FlowID);
`

// Store implements model.CorrelationStore and model.CorrelationQuerier on
// ClickHouse.
type Store struct {
	conn driver.Conn
}

// NewStore connects to ClickHouse and ensures the results table exists.
func NewStore(cfg config.ClickHouseConfig) (*Store, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured correlation table exists.")

	return &Store{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Close closes the ClickHouse connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SaveCorrelations commits a run's qualifying set as one batch. Nothing is
// written for an empty set, and a failed send leaves no rows behind.
func (s *Store) SaveCorrelations(ctx context.Context, runID uuid.UUID, correlations []model.Correlation) error {
	if len(correlations) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO correlation_results")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, c := range correlations {
		err = batch.Append(
			runID,
			c.FlowID,
			c.NodeFingerprint,
			c.TemporalScore,
			c.BandwidthScore,
			c.PatternScore,
			c.ConfidenceScore,
			c.Weights.Temporal,
			c.Weights.Bandwidth,
			c.Weights.Pattern,
			c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append correlation to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d correlations to ClickHouse for run %s", len(correlations), runID)
	return nil
}

// List returns stored correlations matching the filter, ordered by
// confidence descending then insert time, paginated by limit/offset.
func (s *Store) List(ctx context.Context, f model.Filter) ([]model.Correlation, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			RunID, FlowID, NodeFingerprint,
			TemporalScore, BandwidthScore, PatternScore, ConfidenceScore,
			WeightTemporal, WeightBandwidth, WeightPattern, CreatedAt
		FROM correlation_results
	`)

	var whereClauses []string
	args := []interface{}{}

	if f.MinConfidence > 0 {
		whereClauses = append(whereClauses, "ConfidenceScore >= ?")
		args = append(args, f.MinConfidence)
	}
	if f.NodeFingerprint != "" {
		whereClauses = append(whereClauses, "NodeFingerprint = ?")
		args = append(args, f.NodeFingerprint)
	}
	if !f.From.IsZero() {
		whereClauses = append(whereClauses, "CreatedAt >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		whereClauses = append(whereClauses, "CreatedAt <= ?")
		args = append(args, f.To)
	}

	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY ConfidenceScore DESC, CreatedAt")

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	queryBuilder.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, f.Offset)

	rows, err := s.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlations: %w", err)
	}
	defer rows.Close()

	var results []model.Correlation
	for rows.Next() {
		var (
			c         model.Correlation
			createdAt time.Time
		)
		err := rows.Scan(&c.RunID, &c.FlowID, &c.NodeFingerprint,
			&c.TemporalScore, &c.BandwidthScore, &c.PatternScore, &c.ConfidenceScore,
			&c.Weights.Temporal, &c.Weights.Bandwidth, &c.Weights.Pattern, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correlation: %w", err)
		}
		c.CreatedAt = createdAt
		results = append(results, c)
	}
	return results, nil
}

// Summary returns the count and average confidence for one run.
func (s *Store) Summary(ctx context.Context, runID uuid.UUID) (model.RunSummary, error) {
	const query = `
		SELECT count(), if(count() = 0, 0., avg(ConfidenceScore))
		FROM correlation_results
		WHERE RunID = ?`

	row := s.conn.QueryRow(ctx, query, runID)

	summary := model.RunSummary{RunID: runID}
	if err := row.Scan(&summary.Count, &summary.AvgConfidence); err != nil {
		return model.RunSummary{}, fmt.Errorf("failed to scan run summary: %w", err)
	}
	return summary, nil
}
