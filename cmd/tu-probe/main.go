package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket"
	gopcap "github.com/google/gopacket/pcap"

	"torunveil/internal/config"
	"torunveil/internal/ingest"
	"torunveil/internal/model"
	"torunveil/pkg/pcap"
)

const (
	snapshotLen int32 = 1600
	promiscuous       = true
	timeout           = gopcap.BlockForever
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	mode := flag.String("mode", "file", "Operating mode: 'file' to extract from a pcap file, 'live' to capture from an interface, 'sub' to subscribe and print.")
	file := flag.String("file", "", "Pcap file to read (file mode).")
	iface := flag.String("iface", "", "Interface to capture from (live mode).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch *mode {
	case "file":
		runFile(cfg, *file)
	case "live":
		runLive(cfg, *iface)
	case "sub":
		runSubscriber(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runFile extracts flows from an offline capture and publishes them.
func runFile(cfg *config.Config, path string) {
	if path == "" {
		log.Println("Error: -file flag is required for file mode.")
		flag.Usage()
		os.Exit(1)
	}
	log.Printf("Extracting flows from %s", path)

	reader, err := pcap.NewReader(path)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()

	packets := make(chan ingest.Packet, 1000)
	go reader.ReadPackets(packets)

	assembler := ingest.NewAssembler()
	count := 0
	for pkt := range packets {
		assembler.Add(pkt)
		count++
	}
	flows := assembler.Flows(path)
	log.Printf("Assembled %d flows from %d packets", len(flows), count)

	publishFlows(cfg, flows)
}

// runLive captures from an interface until interrupted, then publishes the
// assembled flows.
func runLive(cfg *config.Config, interfaceName string) {
	if interfaceName == "" {
		log.Println("Error: -iface flag is required for live mode.")
		flag.Usage()
		os.Exit(1)
	}
	log.Printf("Starting live capture on interface %s", interfaceName)

	handle, err := gopcap.OpenLive(interfaceName, snapshotLen, promiscuous, timeout)
	if err != nil {
		log.Fatalf("Error opening device %s: %v", interfaceName, err)
	}
	defer handle.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	assembler := ingest.NewAssembler()
	done := make(chan struct{})
	go func() {
		defer close(done)
		packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
		captured := 0
		for packet := range packetSource.Packets() {
			pkt, err := pcap.ParsePacket(packet)
			if err != nil {
				continue // Skip non-IP packets
			}
			assembler.Add(pkt)
			captured++
			if captured%1000 == 0 {
				log.Printf("%d packets captured...", captured)
			}
		}
	}()

	<-sigChan
	log.Println("Shutdown signal received, publishing assembled flows...")
	handle.Close()
	<-done

	flows := assembler.Flows(fmt.Sprintf("live:%s", interfaceName))
	publishFlows(cfg, flows)
}

func publishFlows(cfg *config.Config, flows []model.Flow) {
	pub, err := ingest.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	published := 0
	for _, flow := range flows {
		if err := pub.Publish(flow); err != nil {
			log.Printf("Failed to publish flow: %v", err)
			continue
		}
		published++
	}
	log.Printf("Published %d flow records", published)
}

// runSubscriber prints received flow records, for debugging the transport.
func runSubscriber(cfg *config.Config) {
	log.Println("Starting tu-probe in SUBSCRIBER mode...")

	sub, err := ingest.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	if err := sub.Start(func(flow model.Flow) {
		log.Printf("Received flow: %s:%d -> %s:%d %s, %d bytes over %s",
			flow.SrcIP, flow.SrcPort, flow.DstIP, flow.DstPort, flow.Protocol, flow.Bytes, flow.Duration)
	}); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
