package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacemaster/spacedrive/internal/logger"
	"github.com/spacemaster/spacedrive/pkg/config"
	"github.com/spacemaster/spacedrive/pkg/drive"
	"github.com/spacemaster/spacedrive/pkg/gc"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	fmt.Println("SpaceDrive - permission-scoped cloud drive core")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		log.Fatalf("Failed to create metadata store: %v", err)
	}
	logger.Info("Metadata store initialized: type=%s", cfg.Metadata.Type)

	blobs, err := config.CreateBlobStore(ctx, &cfg.Blob)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}
	logger.Info("Blob store initialized: type=%s", cfg.Blob.Type)

	directory := config.CreateDirectory(&cfg.Directory)

	service := drive.NewService(store, blobs, directory)

	if err := service.Healthcheck(ctx); err != nil {
		log.Fatalf("Healthcheck failed: %v", err)
	}

	collector := gc.NewCollector(store, blobs, gc.Config{
		Enabled:   cfg.GC.Enabled,
		Interval:  cfg.GC.Interval,
		BatchSize: cfg.GC.BatchSize,
		DryRun:    cfg.GC.DryRun,
	})
	collector.Start()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("SpaceDrive is running. Press Ctrl+C to stop.")
	<-sigChan

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := collector.Stop(shutdownCtx); err != nil {
		logger.Warn("Garbage collector did not stop cleanly: %v", err)
	}

	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("Metadata store did not close cleanly: %v", err)
		}
	}

	logger.Info("Shutdown complete")
}
