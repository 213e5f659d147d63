package ingest

import (
	"net"
	"testing"
	"time"
)

func testPacket(ts time.Time, src, dst string, sport, dport uint16, length int) Packet {
	return Packet{
		Timestamp: ts,
		SrcIP:     net.ParseIP(src),
		DstIP:     net.ParseIP(dst),
		SrcPort:   sport,
		DstPort:   dport,
		Protocol:  "TCP",
		Length:    length,
	}
}

func TestAssembler_GroupsBidirectionalFlow(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAssembler()

	a.Add(testPacket(base, "10.0.0.2", "93.184.216.34", 50000, 443, 60))
	a.Add(testPacket(base.Add(10*time.Millisecond), "93.184.216.34", "10.0.0.2", 443, 50000, 1460))
	a.Add(testPacket(base.Add(25*time.Millisecond), "10.0.0.2", "93.184.216.34", 50000, 443, 514))

	flows := a.Flows("capture.pcap")
	if len(flows) != 1 {
		t.Fatalf("Expected 1 bidirectional flow, got %d", len(flows))
	}

	f := flows[0]
	if f.SrcIP.String() != "10.0.0.2" || f.SrcPort != 50000 {
		t.Errorf("Expected first packet to define the client side, got %s:%d", f.SrcIP, f.SrcPort)
	}
	if f.Packets != 3 || f.Bytes != 60+1460+514 {
		t.Errorf("Unexpected totals: %d packets, %d bytes", f.Packets, f.Bytes)
	}
	if f.Duration != 25*time.Millisecond {
		t.Errorf("Expected duration 25ms, got %s", f.Duration)
	}

	wantSizes := []int64{60, -1460, 514}
	if len(f.Fingerprint.Sizes) != len(wantSizes) {
		t.Fatalf("Expected %d fingerprint entries, got %d", len(wantSizes), len(f.Fingerprint.Sizes))
	}
	for i, want := range wantSizes {
		if f.Fingerprint.Sizes[i] != want {
			t.Errorf("Fingerprint size %d: expected %d, got %d", i, want, f.Fingerprint.Sizes[i])
		}
	}

	wantGaps := []int64{10, 15}
	if len(f.Fingerprint.GapsMS) != len(wantGaps) {
		t.Fatalf("Expected %d gaps, got %d", len(wantGaps), len(f.Fingerprint.GapsMS))
	}
	for i, want := range wantGaps {
		if f.Fingerprint.GapsMS[i] != want {
			t.Errorf("Gap %d: expected %dms, got %dms", i, want, f.Fingerprint.GapsMS[i])
		}
	}
}

func TestAssembler_SeparatesDistinctTuples(t *testing.T) {
	base := time.Now()
	a := NewAssembler()

	a.Add(testPacket(base, "10.0.0.2", "93.184.216.34", 50000, 443, 100))
	a.Add(testPacket(base, "10.0.0.2", "93.184.216.34", 50001, 443, 100)) // different src port
	a.Add(testPacket(base, "10.0.0.3", "93.184.216.34", 50000, 443, 100)) // different src ip

	if flows := a.Flows(""); len(flows) != 3 {
		t.Errorf("Expected 3 distinct flows, got %d", len(flows))
	}
}

func TestAssembler_FingerprintCapped(t *testing.T) {
	base := time.Now()
	a := NewAssembler()

	for i := 0; i < maxFingerprintLen*2; i++ {
		a.Add(testPacket(base.Add(time.Duration(i)*time.Millisecond), "10.0.0.2", "93.184.216.34", 50000, 443, 514))
	}

	flows := a.Flows("")
	if len(flows) != 1 {
		t.Fatalf("Expected 1 flow, got %d", len(flows))
	}
	f := flows[0]
	if len(f.Fingerprint.Sizes) != maxFingerprintLen {
		t.Errorf("Expected fingerprint capped at %d, got %d", maxFingerprintLen, len(f.Fingerprint.Sizes))
	}
	if f.Packets != uint64(maxFingerprintLen*2) {
		t.Errorf("Packet count must not be capped, got %d", f.Packets)
	}
}

func TestFlowRecord_RoundTrip(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAssembler()
	a.Add(testPacket(base, "10.0.0.2", "93.184.216.34", 50000, 443, 60))
	a.Add(testPacket(base.Add(5*time.Millisecond), "93.184.216.34", "10.0.0.2", 443, 50000, 514))

	original := a.Flows("roundtrip.pcap")[0]
	restored := toRecord(original).toFlow()

	if !restored.Fingerprint.Equal(original.Fingerprint) {
		t.Errorf("Fingerprint lost in transport: %+v vs %+v", restored.Fingerprint, original.Fingerprint)
	}
	if !restored.SrcIP.Equal(original.SrcIP) || restored.SrcPort != original.SrcPort {
		t.Errorf("Endpoint lost in transport: %s:%d", restored.SrcIP, restored.SrcPort)
	}
	if restored.Duration != original.Duration || restored.Bytes != original.Bytes {
		t.Errorf("Totals lost in transport: %s, %d bytes", restored.Duration, restored.Bytes)
	}
}
