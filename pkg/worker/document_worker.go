package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/legal-intel/internal/service/intel"
	"github.com/feichai0017/legal-intel/pkg/logger"
	"github.com/feichai0017/legal-intel/pkg/queue"
)

// DocumentWorker drains the priority queues and drives each document
// through the pipeline. Concurrency is the fixed worker pool size;
// each slot owns one document's processing job end-to-end.
type DocumentWorker struct {
	BaseWorker
	pipeline intel.Pipeline
}

func NewDocumentWorker(config *Config, pipeline intel.Pipeline, log logger.Logger) (*DocumentWorker, error) {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: config.RedisAddr, DB: config.RedisDB},
		asynq.Config{
			Concurrency: config.Concurrency,
			Queues:      config.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff between document attempts.
				return time.Duration(1<<uint(n)) * 30 * time.Second
			},
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log,
			stopChan: make(chan struct{}),
		},
		pipeline: pipeline,
	}

	w.mux.HandleFunc(queue.TaskTypeDocumentProcess, w.handleDocumentProcess)
	return w, nil
}

func (w *DocumentWorker) handleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %w", err)
	}

	if task.DocumentID == "" {
		return fmt.Errorf("invalid task %s: missing document id", task.ID)
	}

	w.logger.Info("Received document task",
		logger.String("taskId", task.ID),
		logger.String("documentId", task.DocumentID),
		logger.String("batchId", task.BatchID),
	)

	return w.pipeline.ProcessDocument(ctx, &task)
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}
