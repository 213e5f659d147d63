package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"torunveil/internal/crawler"
	"torunveil/internal/engine"
	"torunveil/internal/ingest"
	"torunveil/internal/metrics"
	"torunveil/internal/model"
	"torunveil/internal/storage/clickhouse"
	"torunveil/internal/storage/postgres"
	"torunveil/pkg/pcap"
)

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	catalog *postgres.Store
	corr    *clickhouse.Store
	crawler *crawler.Crawler
	runner  *engine.Runner
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": err.Error()})
}

// healthHandler reports service liveness.
func (h *APIHandler) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "torunveil-api",
	})
}

// crawlHandler triggers a topology crawl.
func (h *APIHandler) crawlHandler(w http.ResponseWriter, r *http.Request) {
	inserted, err := h.crawler.Crawl(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"nodes_inserted": inserted,
	})
}

type nodeView struct {
	Fingerprint    string    `json:"fingerprint"`
	Nickname       string    `json:"nickname"`
	Address        string    `json:"ip_address,omitempty"`
	Port           uint16    `json:"or_port"`
	BandwidthBytes uint64    `json:"bandwidth_bytes"`
	CountryCode    string    `json:"country_code,omitempty"`
	ASName         string    `json:"as_name,omitempty"`
	IsGuard        bool      `json:"is_guard"`
	IsExit         bool      `json:"is_exit"`
	Running        bool      `json:"running"`
	LastSeen       time.Time `json:"last_seen"`
	CrawledAt      time.Time `json:"crawled_at"`
}

// nodesHandler lists the latest node snapshots.
func (h *APIHandler) nodesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = parsed
	}

	nodes, err := h.catalog.ListNodes(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		v := nodeView{
			Fingerprint:    n.Fingerprint,
			Nickname:       n.Nickname,
			Port:           n.Port,
			BandwidthBytes: n.BandwidthBytes,
			CountryCode:    n.CountryCode,
			ASName:         n.ASName,
			IsGuard:        n.IsGuard,
			IsExit:         n.IsExit,
			Running:        n.Running,
			LastSeen:       n.LastSeen,
			CrawledAt:      n.CrawledAt,
		}
		if n.Address != nil {
			v.Address = n.Address.String()
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(views),
		"nodes":   views,
	})
}

// ingestHandler extracts flows from a pcap file on disk and persists them.
func (h *APIHandler) ingestHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err))
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("path is required"))
		return
	}

	reader, err := pcap.NewReader(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to open pcap: %w", err))
		return
	}
	defer reader.Close()

	packets := make(chan ingest.Packet, 1000)
	go reader.ReadPackets(packets)

	assembler := ingest.NewAssembler()
	packetCount := 0
	for pkt := range packets {
		assembler.Add(pkt)
		packetCount++
	}
	flows := assembler.Flows(req.Path)

	ids, err := h.catalog.InsertFlows(r.Context(), flows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	metrics.FlowsIngestedTotal.Add(float64(len(ids)))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"packets_parsed":  packetCount,
		"flows_extracted": len(ids),
	})
}

// runHandler executes one correlation run and returns its report.
func (h *APIHandler) runHandler(w http.ResponseWriter, r *http.Request) {
	sinceRunID := uuid.Nil
	if v := r.URL.Query().Get("since_run_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since_run_id: %w", err))
			return
		}
		sinceRunID = parsed
	}

	report, err := h.runner.Run(r.Context(), sinceRunID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
			"report":  report,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  report,
	})
}

// correlationsHandler queries stored correlations with filtering and
// pagination, ordered by confidence descending.
func (h *APIHandler) correlationsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.Filter{
		NodeFingerprint: q.Get("node"),
		Limit:           100,
	}

	if v := q.Get("min_confidence"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid min_confidence %q", v))
			return
		}
		filter.MinConfidence = parsed
	}
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		filter.Limit = parsed
	}
	if v := q.Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid offset %q", v))
			return
		}
		filter.Offset = parsed
	}
	for param, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(param); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s timestamp %q", param, v))
				return
			}
			*dst = parsed
		}
	}

	results, err := h.corr.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(results),
		"results": results,
	})
}

// runSummaryHandler returns count and average confidence for one run.
func (h *APIHandler) runSummaryHandler(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid run id: %w", err))
		return
	}

	summary, err := h.corr.Summary(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"summary": summary,
	})
}
