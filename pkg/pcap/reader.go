// Package pcap reads capture files and parses packets into ingest records.
package pcap

import (
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	gopcap "github.com/google/gopacket/pcap"

	"torunveil/internal/ingest"
)

// Reader reads packets from a pcap file.
type Reader struct {
	handle *gopcap.Handle
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := gopcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadPackets reads all packets from the pcap file and sends the parsed
// records to the provided channel. The channel is closed when the file is
// exhausted. Unsupported packet types are logged and skipped.
func (r *Reader) ReadPackets(out chan<- ingest.Packet) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		pkt, err := ParsePacket(packet)
		if err != nil {
			log.Printf("Skipping packet: %v", err)
			continue
		}
		out <- pkt
	}
}

// ParsePacket extracts the 5-tuple, timestamp and length from a decoded
// packet. Only IPv4 TCP/UDP packets are supported.
func ParsePacket(packet gopacket.Packet) (ingest.Packet, error) {
	pkt := ingest.Packet{Timestamp: time.Now()}
	if meta := packet.Metadata(); meta != nil {
		pkt.Timestamp = meta.Timestamp
		pkt.Length = meta.Length
	}

	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return ingest.Packet{}, fmt.Errorf("not an IPv4 packet")
	}
	ipLayer := l.(*layers.IPv4)
	pkt.SrcIP = ipLayer.SrcIP
	pkt.DstIP = ipLayer.DstIP
	if pkt.Length == 0 {
		pkt.Length = int(ipLayer.Length)
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcpLayer := l.(*layers.TCP)
		pkt.SrcPort = uint16(tcpLayer.SrcPort)
		pkt.DstPort = uint16(tcpLayer.DstPort)
		pkt.Protocol = "TCP"
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udpLayer := l.(*layers.UDP)
		pkt.SrcPort = uint16(udpLayer.SrcPort)
		pkt.DstPort = uint16(udpLayer.DstPort)
		pkt.Protocol = "UDP"
	} else {
		return ingest.Packet{}, fmt.Errorf("not a TCP or UDP packet")
	}

	return pkt, nil
}
