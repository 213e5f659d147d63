package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"torunveil/internal/config"
	"torunveil/internal/crawler"
	"torunveil/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	interval := flag.Duration("interval", 0, "Crawl repeatedly at this interval; 0 runs a single crawl.")
	initSchema := flag.Bool("init-schema", false, "Create catalog tables before crawling.")
	flag.Parse()

	log.Println("Starting tu-crawler...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	catalog, err := postgres.NewStore(cfg.Storage.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to catalog store: %v", err)
	}
	defer catalog.Close()

	if *initSchema {
		if err := catalog.InitSchema(context.Background()); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		log.Println("Catalog schema initialized.")
	}

	c, err := crawler.New(cfg.Crawler, catalog)
	if err != nil {
		log.Fatalf("Failed to create crawler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received.")
		cancel()
	}()

	if _, err := c.Crawl(ctx); err != nil {
		log.Fatalf("Crawl failed: %v", err)
	}

	if *interval <= 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := c.Crawl(ctx); err != nil {
				log.Printf("Crawl failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("Crawler stopped.")
			return
		}
	}
}
