// Package crawler acquires the node catalog from the Onionoo relay API and
// appends fresh snapshots to the catalog store.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"torunveil/internal/config"
	"torunveil/internal/metrics"
	"torunveil/internal/model"
)

// NodeWriter receives the crawled node snapshots.
type NodeWriter interface {
	InsertNodes(ctx context.Context, nodes []model.Node) (int, error)
}

// relayDetails mirrors the fields of the Onionoo details document we use.
type relayDetails struct {
	Relays []struct {
		Fingerprint       string   `json:"fingerprint"`
		Nickname          string   `json:"nickname"`
		ORAddresses       []string `json:"or_addresses"`
		Flags             []string `json:"flags"`
		ObservedBandwidth uint64   `json:"observed_bandwidth"`
		Country           string   `json:"country"`
		ASName            string   `json:"as_name"`
		LastSeen          string   `json:"last_seen"`
		Running           bool     `json:"running"`
	} `json:"relays"`
}

// Crawler fetches relay details and writes node snapshots.
type Crawler struct {
	url    string
	client *http.Client
	writer NodeWriter
}

// New builds a Crawler from the crawler configuration.
func New(cfg config.CrawlerConfig, writer NodeWriter) (*Crawler, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid crawler timeout: %w", err)
	}
	return &Crawler{
		url:    cfg.OnionooURL,
		client: &http.Client{Timeout: timeout},
		writer: writer,
	}, nil
}

// Crawl fetches the current relay details and inserts one snapshot row per
// relay. It returns the number of nodes inserted.
func (c *Crawler) Crawl(ctx context.Context) (int, error) {
	log.Printf("Starting topology crawl from %s", c.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch relay details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("relay details fetch returned status %d", resp.StatusCode)
	}

	var details relayDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return 0, fmt.Errorf("failed to decode relay details: %w", err)
	}

	crawledAt := time.Now().UTC()
	nodes := make([]model.Node, 0, len(details.Relays))
	for _, relay := range details.Relays {
		node := model.Node{
			Fingerprint:    relay.Fingerprint,
			Nickname:       relay.Nickname,
			BandwidthBytes: relay.ObservedBandwidth,
			CountryCode:    relay.Country,
			ASName:         relay.ASName,
			Running:        relay.Running,
			CrawledAt:      crawledAt,
		}
		for _, flag := range relay.Flags {
			switch flag {
			case "Guard":
				node.IsGuard = true
			case "Exit":
				node.IsExit = true
			}
		}
		if len(relay.ORAddresses) > 0 {
			node.Address, node.Port = splitORAddress(relay.ORAddresses[0])
		}
		if relay.LastSeen != "" {
			// Onionoo reports "2006-01-02 15:04:05" in UTC.
			if ts, err := time.Parse("2006-01-02 15:04:05", relay.LastSeen); err == nil {
				node.LastSeen = ts.UTC()
			}
		}
		nodes = append(nodes, node)
	}

	inserted, err := c.writer.InsertNodes(ctx, nodes)
	if err != nil {
		return inserted, fmt.Errorf("failed to store crawled nodes: %w", err)
	}
	metrics.NodesCrawledTotal.Add(float64(inserted))

	log.Printf("Topology crawl complete: %d nodes inserted", inserted)
	return inserted, nil
}

// splitORAddress parses an Onionoo or_address entry such as
// "199.87.154.255:443" or "[2001:db8::1]:9001".
func splitORAddress(addr string) (net.IP, uint16) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0
	}
	port, err := strconv.ParseUint(strings.TrimSpace(portStr), 10, 16)
	if err != nil {
		return net.ParseIP(host), 0
	}
	return net.ParseIP(host), uint16(port)
}
