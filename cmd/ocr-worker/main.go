/**
 * OCR Worker - Main Entry Point
 *
 * Consumes OCR task messages produced by the ingestion pipeline, reads the
 * canonical document file from its storage namespace, runs Tesseract and
 * stores the recognized text of each page for the target version.
 *
 * Queue protocols:
 * - asynq (default): ocr:document and ocr:page tasks with exponential retry
 * - redis-list: LPUSH/BRPOP job ids with job data in <queue>:data
 */

package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/docingest/internal/config"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/ocr"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("OCR worker starting (queue=%s, dispatcher=%s, workers=%d, languages=%v)",
		cfg.OCRQueue, cfg.OCRDispatcher, cfg.WorkerConcurrency, cfg.TesseractLanguages)

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

	engine, err := ocr.NewTesseract(cfg.TesseractLanguages)
	if err != nil {
		log.Fatalf("Failed to initialize Tesseract: %v", err)
	}
	recognizer := ocr.NewRecognizer(gateway, st, engine, cfg.TempDir, logging.NewLogger("OCR"))

	switch cfg.OCRDispatcher {
	case "redis-list":
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()

		consumer, err := queue.NewListConsumer(rdb, recognizer, &queue.ListConsumerConfig{
			QueueName:         cfg.OCRQueue,
			Concurrency:       cfg.WorkerConcurrency,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			log.Fatalf("Failed to initialize list consumer: %v", err)
		}
		if err := consumer.Start(); err != nil {
			log.Fatalf("Failed to start list consumer: %v", err)
		}
		log.Printf("OCR worker is READY, waiting for jobs... (backlog: %v)", consumer.GetStats(ctx))

		<-ctx.Done()
		log.Printf("Shutdown signal received, draining workers...")
		if err := consumer.Stop(); err != nil {
			log.Printf("Error stopping list consumer: %v", err)
		}

	default:
		consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.OCRQueue,
			Concurrency:       cfg.WorkerConcurrency,
			Handler:           recognizer,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			log.Fatalf("Failed to initialize queue consumer: %v", err)
		}
		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("Failed to start queue consumer: %v", err)
		}
		log.Printf("OCR worker is READY, waiting for jobs... (%v)", consumer.GetStatistics())

		<-ctx.Done()
		log.Printf("Shutdown signal received, draining workers...")
		if err := consumer.Stop(context.Background()); err != nil {
			log.Printf("Error stopping queue consumer: %v", err)
		}
	}

	log.Printf("Shutdown complete")
}
