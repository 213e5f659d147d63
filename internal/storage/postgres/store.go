// Package postgres implements the node/flow catalog store and the run
// ledger on PostgreSQL. Node snapshots and flows are append-only; nothing is
// mutated in place, so historical topology is preserved across crawls.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"torunveil/internal/config"
	"torunveil/internal/model"
)

const schemaStatement = `
CREATE TABLE IF NOT EXISTS tor_nodes (
    id                BIGSERIAL PRIMARY KEY,
    fingerprint       VARCHAR(40) NOT NULL,
    nickname          TEXT,
    ip_address        INET,
    or_port           INTEGER,
    bandwidth_bytes   BIGINT,
    country_code      VARCHAR(2),
    as_name           TEXT,
    is_guard          BOOLEAN NOT NULL DEFAULT FALSE,
    is_exit           BOOLEAN NOT NULL DEFAULT FALSE,
    running           BOOLEAN NOT NULL DEFAULT TRUE,
    last_seen         TIMESTAMPTZ,
    crawled_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    reference_sizes   BIGINT[],
    reference_gaps_ms BIGINT[]
);

CREATE INDEX IF NOT EXISTS idx_tor_nodes_snapshot ON tor_nodes (fingerprint, crawled_at DESC);
CREATE INDEX IF NOT EXISTS idx_tor_nodes_guard ON tor_nodes (is_guard) WHERE is_guard;

CREATE TABLE IF NOT EXISTS network_flows (
    id           BIGSERIAL PRIMARY KEY,
    capture_file TEXT,
    src_ip       INET,
    src_port     INTEGER,
    dst_ip       INET,
    dst_port     INTEGER,
    protocol     VARCHAR(10),
    start_time   TIMESTAMPTZ,
    duration_ms  BIGINT,
    byte_count   BIGINT,
    packet_count BIGINT,
    fp_sizes     BIGINT[],
    fp_gaps_ms   BIGINT[],
    ingested_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_flows_start_time ON network_flows (start_time);

CREATE TABLE IF NOT EXISTS correlation_runs (
    run_id          UUID PRIMARY KEY,
    started_at      TIMESTAMPTZ,
    finished_at     TIMESTAMPTZ,
    flows_processed INTEGER,
    pairs_scored    INTEGER,
    correlations    INTEGER,
    errors_skipped  INTEGER,
    max_flow_id     BIGINT
);
`

// Store is the PostgreSQL-backed catalog store. It implements
// model.NodeSource, model.FlowSource and model.RunLedger.
type Store struct {
	db *sql.DB
}

// NewStore connects to PostgreSQL and verifies the connection.
func NewStore(cfg config.PostgresConfig) (*Store, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// InitSchema creates the catalog tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaStatement); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertNodes appends one snapshot row per node. Existing rows for the same
// fingerprint are never touched.
func (s *Store) InsertNodes(ctx context.Context, nodes []model.Node) (int, error) {
	const query = `
		INSERT INTO tor_nodes (
			fingerprint, nickname, ip_address, or_port, bandwidth_bytes,
			country_code, as_name, is_guard, is_exit, running, last_seen,
			crawled_at, reference_sizes, reference_gaps_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	inserted := 0
	for _, n := range nodes {
		crawledAt := n.CrawledAt
		if crawledAt.IsZero() {
			crawledAt = time.Now().UTC()
		}
		var refSizes, refGaps interface{}
		if n.Reference != nil {
			refSizes = pq.Array(n.Reference.Sizes)
			refGaps = pq.Array(n.Reference.GapsMS)
		}
		_, err := s.db.ExecContext(ctx, query,
			n.Fingerprint, n.Nickname, ipValue(n.Address), int(n.Port),
			int64(n.BandwidthBytes), nullString(n.CountryCode), nullString(n.ASName),
			n.IsGuard, n.IsExit, n.Running, nullTime(n.LastSeen), crawledAt,
			refSizes, refGaps,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert node %s: %w", n.Fingerprint, err)
		}
		inserted++
	}
	return inserted, nil
}

// InsertFlows persists extracted flows and returns their assigned ids.
func (s *Store) InsertFlows(ctx context.Context, flows []model.Flow) ([]int64, error) {
	const query = `
		INSERT INTO network_flows (
			capture_file, src_ip, src_port, dst_ip, dst_port, protocol,
			start_time, duration_ms, byte_count, packet_count, fp_sizes, fp_gaps_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`

	ids := make([]int64, 0, len(flows))
	for _, f := range flows {
		var id int64
		err := s.db.QueryRowContext(ctx, query,
			f.CaptureFile, ipValue(f.SrcIP), int(f.SrcPort), ipValue(f.DstIP), int(f.DstPort),
			f.Protocol, f.StartTime, f.Duration.Milliseconds(),
			int64(f.Bytes), int64(f.Packets),
			pq.Array(f.Fingerprint.Sizes), pq.Array(f.Fingerprint.GapsMS),
		).Scan(&id)
		if err != nil {
			return ids, fmt.Errorf("failed to insert flow: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GuardNodes returns the latest snapshot of every running guard-eligible
// node, one row per fingerprint.
func (s *Store) GuardNodes(ctx context.Context) ([]model.Node, error) {
	const query = `
		SELECT DISTINCT ON (fingerprint)
			fingerprint, nickname, ip_address, or_port, bandwidth_bytes,
			country_code, as_name, is_guard, is_exit, running, last_seen,
			crawled_at, reference_sizes, reference_gaps_ms
		FROM tor_nodes
		WHERE is_guard AND running
		ORDER BY fingerprint, crawled_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query guard nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ListNodes returns the latest snapshots for the reporting surface, capped
// at limit.
func (s *Store) ListNodes(ctx context.Context, limit int) ([]model.Node, error) {
	const query = `
		SELECT DISTINCT ON (fingerprint)
			fingerprint, nickname, ip_address, or_port, bandwidth_bytes,
			country_code, as_name, is_guard, is_exit, running, last_seen,
			crawled_at, reference_sizes, reference_gaps_ms
		FROM tor_nodes
		ORDER BY fingerprint, crawled_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// UnscoredFlows returns flows above the high-water mark recorded for
// sinceRunID, ordered by id. uuid.Nil (or an unknown run) returns every
// flow.
func (s *Store) UnscoredFlows(ctx context.Context, sinceRunID uuid.UUID) ([]model.Flow, error) {
	const query = `
		SELECT id, capture_file, src_ip, src_port, dst_ip, dst_port, protocol,
		       start_time, duration_ms, byte_count, packet_count, fp_sizes, fp_gaps_ms
		FROM network_flows
		WHERE id > COALESCE((SELECT max_flow_id FROM correlation_runs WHERE run_id = $1), 0)
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, sinceRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unscored flows: %w", err)
	}
	defer rows.Close()

	var flows []model.Flow
	for rows.Next() {
		var (
			f          model.Flow
			srcIP      sql.NullString
			dstIP      sql.NullString
			durationMS int64
			sizes      pq.Int64Array
			gaps       pq.Int64Array
		)
		err := rows.Scan(&f.ID, &f.CaptureFile, &srcIP, &f.SrcPort, &dstIP, &f.DstPort,
			&f.Protocol, &f.StartTime, &durationMS, &f.Bytes, &f.Packets, &sizes, &gaps)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		f.SrcIP = parseIP(srcIP)
		f.DstIP = parseIP(dstIP)
		f.Duration = time.Duration(durationMS) * time.Millisecond
		f.Fingerprint = model.Fingerprint{Sizes: sizes, GapsMS: gaps}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// RecordRun appends one ledger row for a completed run.
func (s *Store) RecordRun(ctx context.Context, report model.RunReport, maxFlowID int64) error {
	const query = `
		INSERT INTO correlation_runs (
			run_id, started_at, finished_at, flows_processed,
			pairs_scored, correlations, errors_skipped, max_flow_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := s.db.ExecContext(ctx, query,
		report.RunID, report.StartedAt, time.Now().UTC(),
		report.FlowsProcessed, report.PairsScored, report.Correlations,
		report.ErrorsSkipped, maxFlowID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}
	return nil
}

func scanNode(rows *sql.Rows) (model.Node, error) {
	var (
		n        model.Node
		addr     sql.NullString
		country  sql.NullString
		asName   sql.NullString
		lastSeen sql.NullTime
		refSizes pq.Int64Array
		refGaps  pq.Int64Array
	)
	err := rows.Scan(&n.Fingerprint, &n.Nickname, &addr, &n.Port, &n.BandwidthBytes,
		&country, &asName, &n.IsGuard, &n.IsExit, &n.Running, &lastSeen,
		&n.CrawledAt, &refSizes, &refGaps)
	if err != nil {
		return model.Node{}, fmt.Errorf("failed to scan node: %w", err)
	}
	n.Address = parseIP(addr)
	n.CountryCode = country.String
	n.ASName = asName.String
	if lastSeen.Valid {
		n.LastSeen = lastSeen.Time
	}
	if len(refSizes) > 0 {
		n.Reference = &model.Fingerprint{Sizes: refSizes, GapsMS: refGaps}
	}
	return n, nil
}

func ipValue(ip net.IP) interface{} {
	if ip == nil {
		return nil
	}
	return ip.String()
}

func parseIP(s sql.NullString) net.IP {
	if !s.Valid {
		return nil
	}
	return net.ParseIP(s.String)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
