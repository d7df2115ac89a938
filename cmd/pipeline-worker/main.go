// Pipeline worker - consumes document jobs from the broker and runs the
// five-stage roofing estimate pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brant/roofpipeline/pkg/blobstore"
	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/database"
	"github.com/brant/roofpipeline/pkg/documents"
	"github.com/brant/roofpipeline/pkg/llm"
	"github.com/brant/roofpipeline/pkg/ocr"
	"github.com/brant/roofpipeline/pkg/orchestrator"
	"github.com/brant/roofpipeline/pkg/pipeline/analyzer"
	"github.com/brant/roofpipeline/pkg/pipeline/composer"
	"github.com/brant/roofpipeline/pkg/pipeline/extractor"
	"github.com/brant/roofpipeline/pkg/pipeline/interpreter"
	"github.com/brant/roofpipeline/pkg/pipeline/measurer"
	"github.com/brant/roofpipeline/pkg/queue"
	"github.com/brant/roofpipeline/pkg/version"
)

// blueprintDPI is the image resolution the measurement path assumes when
// converting a drawing scale to pixels per foot.
const blueprintDPI = 300

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
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	slog.Info("Starting pipeline worker", "version", version.Full(), "config_dir", *configDir)

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

	blobs, err := blobstore.New(ctx, cfg.BlobStore)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	broker, err := queue.NewBroker(cfg.Broker)
	if err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}
	defer broker.Close()

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize LLM adapter: %v", err)
	}
	ocrClient := ocr.NewClient(cfg.OCR)

	store := documents.New(dbClient.DB())
	timeouts := cfg.StageTimeouts
	stages := orchestrator.Stages{
		Analyze:   analyzer.New(llmClient, time.Duration(timeouts.AnalyzeSeconds)*time.Second),
		Extract:   extractor.New(ocrClient, time.Duration(timeouts.ExtractSeconds)*time.Second, cfg.LLM.MaxImageCount),
		Measure:   measurer.New(llmClient, cfg.CV, cfg.LLMVision, time.Duration(timeouts.MeasureSeconds)*time.Second, blueprintDPI),
		Interpret: interpreter.New(llmClient, time.Duration(timeouts.InterpretSeconds)*time.Second, cfg.LLM.TextTokenBudget, cfg.LLM.MaxImageCount),
		Compose:   composer.New(cfg.Pricing, time.Duration(timeouts.ComposeSeconds)*time.Second),
	}

	logger := slog.With("component", "pipeline-worker")
	orch := orchestrator.New(store, blobs, broker, stages, cfg.Queue, logger)

	consumer, err := broker.NewConsumer()
	if err != nil {
		log.Fatalf("Failed to create broker consumer: %v", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Printf("Error closing consumer: %v", err)
		}
	}()

	pool := queue.NewPool(consumer, orch, cfg.Queue, logger)
	pool.Start(ctx)
	slog.Info("Worker pool started", "workers", cfg.Queue.WorkerCount)

	janitor := queue.NewJanitor(store, broker, cfg.Queue, logger)
	go janitor.Run(ctx)
	slog.Info("Lease-recovery janitor started", "interval", cfg.Queue.JanitorInterval)

	<-ctx.Done()
	slog.Info("Shutting down, draining in-flight jobs")
	pool.Stop()
}
