package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"torunveil/internal/config"
	"torunveil/internal/engine"
	"torunveil/internal/storage/clickhouse"
	"torunveil/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	sinceRun := flag.String("since-run", "", "Resume from the high-water mark of this run id; empty scores all flows.")
	flag.Parse()

	log.Println("Starting tu-engine...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sinceRunID := uuid.Nil
	if *sinceRun != "" {
		sinceRunID, err = uuid.Parse(*sinceRun)
		if err != nil {
			log.Fatalf("Invalid -since-run id: %v", err)
		}
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

	runner, err := engine.New(cfg.Engine, catalog, catalog, corrStore, catalog)
	if err != nil {
		log.Fatalf("Failed to create correlation engine: %v", err)
	}

	// Cancel the run on SIGINT/SIGTERM; a cancelled run persists nothing.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, cancelling run...")
		cancel()
	}()

	report, err := runner.Run(ctx, sinceRunID)
	if err != nil {
		log.Fatalf("Run %s failed: %v", report.RunID, err)
	}

	log.Printf("Run %s: flows=%d pairs=%d correlations=%d errors=%d",
		report.RunID, report.FlowsProcessed, report.PairsScored, report.Correlations, report.ErrorsSkipped)
	for _, e := range report.Errors {
		log.Printf("  skipped: %s", e)
	}
}
