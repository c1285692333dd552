package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pharma-assistant/clinical"
	"pharma-assistant/config"
	"pharma-assistant/database"
	"pharma-assistant/llmclient"
	"pharma-assistant/pipeline"
	"pharma-assistant/web"
	"pharma-assistant/web/handlers"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Optional .env for local development; real deployments set the
	// environment directly
	_ = godotenv.Load()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	store, err := database.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	llm := llmclient.New(cfg, logger)

	clinicalClient, err := clinical.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize clinical reference client", zap.Error(err))
	}

	classifier := pipeline.NewClassifier(llm, cfg.UseRemoteClassifier, logger)
	retriever := pipeline.NewRetriever(llm, store, cfg.MaxChunks, cfg.SimilarityFloor, logger)
	aggregator := pipeline.NewAggregator(store, clinicalClient, logger)
	synthesizer := pipeline.NewSynthesizer(llm, logger)
	service := pipeline.NewService(cfg, classifier, retriever, aggregator, synthesizer, store, logger)

	handler := handlers.NewAssistantHandler(service, classifier, cfg, store, logger)
	webServer := web.NewServer(handler, logger, cfg)

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	port := fmt.Sprintf(":%d", cfg.WebPort)
	logger.Info("Starting pharmacy assistant web server", zap.String("port", port))
	if err := webServer.Start(ctx, port); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
