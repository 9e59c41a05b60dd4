/**
 * Document ingestion daemon - Main Entry Point
 *
 * Hosts every ingestion entry point in one process:
 * - WEB and REST_API uploads over HTTP
 * - IMAP mailbox polling (when IMAP_HOST is set)
 * - LOCAL directory polling (when LOCAL_IMPORT_DIR is set)
 *
 * Each file runs through the configured stage chain, is stored under its
 * canonical path and handed to the OCR queue consumed by cmd/ocr-worker.
 */

package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docingest/internal/api"
	"github.com/adverant/nexus/docingest/internal/config"
	"github.com/adverant/nexus/docingest/internal/importer"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/mimetype"
	"github.com/adverant/nexus/docingest/internal/pipeline"
	"github.com/adverant/nexus/docingest/internal/queue"
	"github.com/adverant/nexus/docingest/internal/storage"
	"github.com/adverant/nexus/docingest/internal/store"
)

func main() {
	if err := godotenv.Load(".env.docingest"); err != nil {
		log.Printf("Warning: .env.docingest not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	pc, err := config.LoadPipeline(cfg.PipelineFile)
	if err != nil {
		log.Fatalf("Failed to load pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger("Ingest")
	log.Printf("Document ingestion daemon starting (db=%s, storage=%s, dispatcher=%s)",
		cfg.DatabaseDriver, cfg.StorageBackend, cfg.OCRDispatcher)

	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open document store: %v", err)
	}
	defer st.Close()

	gateway, err := storage.New(ctx, storage.Options{
		Backend:        cfg.StorageBackend,
		MediaRoot:      cfg.MediaRoot,
		GCSBucket:      cfg.GCSBucket,
		ArtifactAPIURL: cfg.ArtifactAPIURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	if c, ok := gateway.(io.Closer); ok {
		defer c.Close()
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	var dispatcher queue.Dispatcher
	switch cfg.OCRDispatcher {
	case "redis-list":
		dispatcher = queue.NewListDispatcher(rdb, cfg.OCRQueue)
	default:
		d, err := queue.NewAsynqDispatcher(cfg.RedisURL, cfg.OCRQueue)
		if err != nil {
			log.Fatalf("Failed to initialize OCR dispatcher: %v", err)
		}
		defer d.Close()
		dispatcher = d
	}

	deps := pipeline.Deps{
		Store:       st,
		Storage:     gateway,
		Dispatcher:  dispatcher,
		Classifier:  mimetype.NewMagicClassifier(),
		Logger:      logging.NewLogger("Pipeline"),
		Languages:   cfg.TesseractLanguages,
		DefaultLang: cfg.DefaultLanguage,
	}
	if cfg.IngestEvents {
		deps.Events = queue.NewEventPublisher(rdb, cfg.OCRQueue)
	}

	chain, err := pipeline.NewChain(pc, pipeline.DefaultRegistry(), deps)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	log.Printf("Pipeline stages: %v", chain.Stages())

	imp := importer.New(chain, cfg.TempDir, logging.NewLogger("Importer"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(imp, st, cfg.MaxFileSize, logging.NewLogger("API")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("HTTP listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.IMAP.Host != "" {
		mail := importer.NewIMAPImporter(imp, importer.DialIMAP(cfg.IMAP), cfg.IMAP.PollInterval,
			cfg.ImportUsername, logging.NewLogger("IMAPImporter"))
		g.Go(func() error { return mail.Run(gctx) })
	}

	if cfg.LocalImportDir != "" {
		local := importer.NewLocalImporter(imp, cfg.LocalImportDir, cfg.LocalPollInterval,
			cfg.ImportUsername, logging.NewLogger("LocalImporter"))
		g.Go(func() error { return local.Run(gctx) })
	}

	logger.Info("Ingestion daemon ready", "http", cfg.HTTPAddr, "imap", cfg.IMAP.Host != "", "local", cfg.LocalImportDir)

	if err := g.Wait(); err != nil {
		log.Fatalf("Ingestion daemon stopped: %v", err)
	}
	log.Printf("Shutdown complete")
}
