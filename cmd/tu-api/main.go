package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"torunveil/internal/config"
	"torunveil/internal/crawler"
	"torunveil/internal/engine"
	"torunveil/internal/ingest"
	"torunveil/internal/metrics"
	"torunveil/internal/model"
	"torunveil/internal/storage/clickhouse"
	"torunveil/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	initSchema := flag.Bool("init-schema", false, "Create storage tables before serving.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	catalog, err := postgres.NewStore(cfg.Storage.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to catalog store: %v", err)
	}
	defer catalog.Close()

	corrStore, err := clickhouse.NewStore(cfg.Storage.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to correlation store: %v", err)
	}
	defer corrStore.Close()

	if *initSchema {
		if err := catalog.InitSchema(context.Background()); err != nil {
			log.Fatalf("Failed to initialize catalog schema: %v", err)
		}
		log.Println("Catalog schema initialized.")
	}

	c, err := crawler.New(cfg.Crawler, catalog)
	if err != nil {
		log.Fatalf("Failed to create crawler: %v", err)
	}

	runner, err := engine.New(cfg.Engine, catalog, catalog, corrStore, catalog)
	if err != nil {
		log.Fatalf("Failed to create correlation engine: %v", err)
	}

	// Consume flows published by tu-probe and persist them to the catalog.
	sub, err := ingest.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Printf("NATS unavailable, flow subscription disabled: %v", err)
	} else {
		defer sub.Close()
		if err := sub.Start(func(flow model.Flow) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			ids, err := catalog.InsertFlows(ctx, []model.Flow{flow})
			if err != nil {
				log.Printf("Failed to persist flow from %s: %v", flow.SrcIP, err)
				return
			}
			metrics.FlowsIngestedTotal.Add(float64(len(ids)))
		}); err != nil {
			log.Fatalf("Failed to start flow subscriber: %v", err)
		}
		log.Printf("Subscribed to flow subject %q", cfg.NATS.Subject)
	}

	// Initialize router
	r := mux.NewRouter()

	apiHandler := &APIHandler{
		catalog: catalog,
		corr:    corrStore,
		crawler: c,
		runner:  runner,
	}

	r.HandleFunc("/api/v1/health", apiHandler.healthHandler).Methods("GET")
	r.HandleFunc("/api/v1/topology/crawl", apiHandler.crawlHandler).Methods("POST")
	r.HandleFunc("/api/v1/topology/nodes", apiHandler.nodesHandler).Methods("GET")
	r.HandleFunc("/api/v1/pcap/ingest", apiHandler.ingestHandler).Methods("POST")
	r.HandleFunc("/api/v1/correlation/run", apiHandler.runHandler).Methods("POST")
	r.HandleFunc("/api/v1/correlations", apiHandler.correlationsHandler).Methods("GET")
	r.HandleFunc("/api/v1/runs/{id}/summary", apiHandler.runSummaryHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}
