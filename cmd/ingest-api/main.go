// Ingest API server - accepts roofing document uploads, registers them for
// processing, and serves status/results.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/brant/roofpipeline/pkg/api"
	"github.com/brant/roofpipeline/pkg/blobstore"
	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/database"
	"github.com/brant/roofpipeline/pkg/documents"
	"github.com/brant/roofpipeline/pkg/queue"
	"github.com/brant/roofpipeline/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	uploadDir := flag.String("upload-dir",
		getEnv("UPLOAD_DIR", "./uploads"),
		"Directory for streamed direct uploads (local-only mode)")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ctx := context.Background()
	slog.Info("Starting ingest API", "version", version.Full(), "config_dir", *configDir)

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	slog.Info("Connected to PostgreSQL, schema initialized")

	blobs, err := blobstore.New(ctx, cfg.BlobStore)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}
	if !blobs.Enabled() {
		slog.Info("Blob store not configured; direct upload path only", "upload_dir", *uploadDir)
	}

	broker, err := queue.NewBroker(cfg.Broker)
	if err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}
	defer broker.Close()
	slog.Info("Connected to NATS JetStream", "subject", cfg.Broker.Subject)

	store := documents.New(dbClient.DB())

	server := api.NewServer(cfg, dbClient, store, blobs, broker, *uploadDir)

	go func() {
		addr := ":" + cfg.Server.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
