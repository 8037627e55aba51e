package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/feichai0017/legal-intel/config"
	"github.com/feichai0017/legal-intel/internal/service/intel"
	"github.com/feichai0017/legal-intel/pkg/logger"
	"github.com/feichai0017/legal-intel/pkg/queue"
	"github.com/feichai0017/legal-intel/pkg/worker"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pipeline, err := intel.GetService(log)
	if err != nil {
		log.Error("Failed to initialize pipeline service", logger.Error(err))
		os.Exit(1)
	}

	redisConfig := cfg.GetRedisConfig()
	pipelineConfig := cfg.GetPipelineConfig()

	workerCfg := &worker.Config{
		RedisAddr:   redisConfig.Addr,
		RedisDB:     redisConfig.DB,
		Concurrency: pipelineConfig.WorkerConcurrency,
		Queues:      queue.QueueWeights,
	}

	documentWorker, err := worker.NewDocumentWorker(workerCfg, pipeline, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	// Periodic retention sweep over the blob archive.
	go func() {
		ticker := time.NewTicker(pipelineConfig.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := pipeline.CleanupArchive(ctx); err != nil {
					log.Warn("Archive cleanup failed", logger.Error(err))
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	documentWorker.Stop()
	log.Info("Worker stopped")
}
