// Package ingest turns parsed packets into immutable flow records with
// timing/size fingerprints, and moves those records from the capture probe
// to the catalog over NATS.
package ingest

import (
	"fmt"
	"net"
	"time"

	"torunveil/internal/model"
)

// maxFingerprintLen caps the number of packet sizes kept per flow. The head
// of a flow carries most of the discriminating signal; unbounded sequences
// would bloat the catalog for long transfers.
const maxFingerprintLen = 32

// Packet is one parsed capture record, as produced by pkg/pcap.
type Packet struct {
	Timestamp time.Time
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   uint16
	DstPort   uint16
	Protocol  string
	Length    int
}

// flowState accumulates one bidirectional flow during assembly.
type flowState struct {
	first    Packet
	lastSeen time.Time
	bytes    uint64
	packets  uint64
	sizes    []int64
	gapsMS   []int64
}

// Assembler groups packets into bidirectional flows keyed by 5-tuple. The
// first packet seen for a pair defines the client side; its direction is
// recorded as positive packet sizes, the reverse as negative.
type Assembler struct {
	flows map[string]*flowState
	order []string // insertion order, for deterministic output
}

// NewAssembler creates an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{flows: make(map[string]*flowState)}
}

// Add feeds one packet into the assembler.
func (a *Assembler) Add(pkt Packet) {
	forward := tupleKey(pkt.SrcIP, pkt.SrcPort, pkt.DstIP, pkt.DstPort, pkt.Protocol)
	reverse := tupleKey(pkt.DstIP, pkt.DstPort, pkt.SrcIP, pkt.SrcPort, pkt.Protocol)

	if fs, ok := a.flows[forward]; ok {
		fs.update(pkt, int64(pkt.Length))
		return
	}
	if fs, ok := a.flows[reverse]; ok {
		fs.update(pkt, -int64(pkt.Length))
		return
	}

	fs := &flowState{
		first:    pkt,
		lastSeen: pkt.Timestamp,
		bytes:    uint64(pkt.Length),
		packets:  1,
		sizes:    []int64{int64(pkt.Length)},
	}
	a.flows[forward] = fs
	a.order = append(a.order, forward)
}

func (fs *flowState) update(pkt Packet, signedLen int64) {
	if len(fs.sizes) < maxFingerprintLen {
		fs.sizes = append(fs.sizes, signedLen)
		gap := pkt.Timestamp.Sub(fs.lastSeen).Milliseconds()
		if gap < 0 {
			gap = 0
		}
		fs.gapsMS = append(fs.gapsMS, gap)
	}
	fs.lastSeen = pkt.Timestamp
	fs.bytes += uint64(pkt.Length)
	fs.packets++
}

// Flows finalizes assembly and returns one flow record per 5-tuple, in the
// order the flows were first observed.
func (a *Assembler) Flows(captureFile string) []model.Flow {
	out := make([]model.Flow, 0, len(a.order))
	for _, key := range a.order {
		fs := a.flows[key]
		out = append(out, model.Flow{
			CaptureFile: captureFile,
			SrcIP:       fs.first.SrcIP,
			SrcPort:     fs.first.SrcPort,
			DstIP:       fs.first.DstIP,
			DstPort:     fs.first.DstPort,
			Protocol:    fs.first.Protocol,
			StartTime:   fs.first.Timestamp,
			Duration:    fs.lastSeen.Sub(fs.first.Timestamp),
			Bytes:       fs.bytes,
			Packets:     fs.packets,
			Fingerprint: model.Fingerprint{Sizes: fs.sizes, GapsMS: fs.gapsMS},
		})
	}
	return out
}

func tupleKey(srcIP net.IP, srcPort uint16, dstIP net.IP, dstPort uint16, proto string) string {
	return fmt.Sprintf("%s:%d->%s:%d/%s", srcIP, srcPort, dstIP, dstPort, proto)
}
