package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/visionaree/visionaree-server/internal/api"
	"github.com/visionaree/visionaree-server/internal/config"
	"github.com/visionaree/visionaree-server/internal/db"
	"github.com/visionaree/visionaree-server/internal/inference"
	"github.com/visionaree/visionaree-server/internal/ingest"
	"github.com/visionaree/visionaree-server/internal/logging"
	"github.com/visionaree/visionaree-server/internal/objectstore"
	"github.com/visionaree/visionaree-server/internal/query"
	"github.com/visionaree/visionaree-server/internal/splitter"
	"github.com/visionaree/visionaree-server/internal/store"
	"github.com/visionaree/visionaree-server/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkDir(), 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting visionaree server", "version", config.Version, "data_dir", cfg.DataDir)

	if cfg.ModelAPIKey == "" {
		logger.Warn("VISIONAREE_MODEL_API_KEY is empty, caption calls will fail")
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	st := store.NewSQLiteStore(database.Conn())

	objects, err := objectstore.New(objectstore.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	}, logging.WithComponent(logger, "objectstore"))
	if err != nil {
		return err
	}

	captioner := inference.NewOpenAICaptioner(cfg.ModelBaseURL, cfg.ModelAPIKey, cfg.ModelID,
		logging.WithComponent(logger, "inference"))

	ffmpeg := splitter.NewRealFFmpeg(logging.WithComponent(logger, "splitter"))

	orchestrator := ingest.NewOrchestrator(st, objects, ffmpeg, captioner, ingest.Config{
		SegmentSeconds:    cfg.SegmentSeconds,
		MinSegmentSeconds: cfg.MinSegmentSeconds,
		Workers:           cfg.CaptionWorkers,
		CaptionTimeout:    cfg.CaptionTimeout,
		MaxRetries:        cfg.CaptionRetries,
		WorkDir:           cfg.WorkDir(),
	}, logging.WithComponent(logger, "ingest"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uploadWatcher := watcher.New(objects, logging.WithComponent(logger, "watcher"))
	go uploadWatcher.Run(ctx, orchestrator.HandleUploadEvent)

	apiServer := api.NewServer(api.ServerConfig{
		Port:          cfg.Port,
		Store:         st,
		Objects:       objects,
		Query:         query.NewEngine(st, logging.WithComponent(logger, "query")),
		PresignExpiry: cfg.PresignExpiry,
		Logger:        logging.WithComponent(logger, "api"),
		StartTime:     startTime,
		Version:       config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
