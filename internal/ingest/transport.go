package ingest

import (
	"encoding/json"
	"log"
	"net"
	"time"

	"github.com/nats-io/nats.go"

	"torunveil/internal/config"
	"torunveil/internal/model"
)

// flowRecord is the wire form of a flow on the NATS subject.
type flowRecord struct {
	CaptureFile string    `json:"capture_file"`
	SrcIP       string    `json:"src_ip"`
	SrcPort     uint16    `json:"src_port"`
	DstIP       string    `json:"dst_ip"`
	DstPort     uint16    `json:"dst_port"`
	Protocol    string    `json:"protocol"`
	StartTime   time.Time `json:"start_time"`
	DurationMS  int64     `json:"duration_ms"`
	Bytes       uint64    `json:"bytes"`
	Packets     uint64    `json:"packets"`
	Sizes       []int64   `json:"sizes"`
	GapsMS      []int64   `json:"gaps_ms"`
}

func toRecord(f model.Flow) flowRecord {
	rec := flowRecord{
		CaptureFile: f.CaptureFile,
		SrcPort:     f.SrcPort,
		DstPort:     f.DstPort,
		Protocol:    f.Protocol,
		StartTime:   f.StartTime,
		DurationMS:  f.Duration.Milliseconds(),
		Bytes:       f.Bytes,
		Packets:     f.Packets,
		Sizes:       f.Fingerprint.Sizes,
		GapsMS:      f.Fingerprint.GapsMS,
	}
	if f.SrcIP != nil {
		rec.SrcIP = f.SrcIP.String()
	}
	if f.DstIP != nil {
		rec.DstIP = f.DstIP.String()
	}
	return rec
}

func (r flowRecord) toFlow() model.Flow {
	return model.Flow{
		CaptureFile: r.CaptureFile,
		SrcIP:       net.ParseIP(r.SrcIP),
		SrcPort:     r.SrcPort,
		DstIP:       net.ParseIP(r.DstIP),
		DstPort:     r.DstPort,
		Protocol:    r.Protocol,
		StartTime:   r.StartTime,
		Duration:    time.Duration(r.DurationMS) * time.Millisecond,
		Bytes:       r.Bytes,
		Packets:     r.Packets,
		Fingerprint: model.Fingerprint{Sizes: r.Sizes, GapsMS: r.GapsMS},
	}
}

// Publisher publishes extracted flow records to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to NATS for publishing.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish serializes a flow record and publishes it.
func (p *Publisher) Publish(flow model.Flow) error {
	data, err := json.Marshal(toRecord(flow))
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}

// FlowHandler processes a received flow record.
type FlowHandler func(flow model.Flow)

// Subscriber consumes flow records from a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to NATS for subscribing.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes and dispatches each received record to the handler.
func (s *Subscriber) Start(handler FlowHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var rec flowRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			log.Printf("Error unmarshalling flow record: %v", err)
			return
		}
		handler(rec.toFlow())
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for flow records...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
