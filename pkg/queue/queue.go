package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	cfg "github.com/feichai0017/legal-intel/config"
)

// TaskTypeDocumentProcess carries one document through the pipeline.
const TaskTypeDocumentProcess = "document:process"

// Priority queue names. Documents from higher-priority batches drain
// first, but a running document is never preempted.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// QueueWeights is shared with the worker so drain ratios stay in sync.
var QueueWeights = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// Queue dispatches document-processing tasks.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	CancelTask(ctx context.Context, taskID string) error
}

// Task is one unit of pipeline work: a single document, optionally on
// behalf of a batch.
type Task struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	DocumentID string    `json:"documentId"`
	BatchID    string    `json:"batchId,omitempty"`
	Priority   int       `json:"priority"`
	CreatedAt  time.Time `json:"createdAt"`
}

// QueueConfig defines queue behavior.
type QueueConfig struct {
	RedisAddr      string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
}

// AsynqQueue implements Queue on redis via asynq.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	config    *QueueConfig
}

// GetQueue builds a queue from the environment config.
func GetQueue() (*AsynqQueue, error) {
	redisConfig := cfg.GetRedisConfig()
	pipelineConfig := cfg.GetPipelineConfig()

	return NewAsynqQueue(&QueueConfig{
		RedisAddr:      redisConfig.Addr,
		RedisDB:        redisConfig.DB,
		MaxRetries:     pipelineConfig.MaxAttempts,
		ProcessTimeout: pipelineConfig.DocumentDeadline + time.Minute,
	}), nil
}

func NewAsynqQueue(config *QueueConfig) *AsynqQueue {
	redisOpt := asynq.RedisClientOpt{
		Addr: config.RedisAddr,
		DB:   config.RedisDB,
	}

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		config:    config,
	}
}

// Enqueue adds a document task, routed by priority. The task ID makes
// the enqueue idempotent: a duplicate submission of the same document
// is rejected by asynq while the first task is still pending.
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.config.MaxRetries),
		asynq.Timeout(q.config.ProcessTimeout),
		asynq.TaskID(task.ID),
		asynq.Queue(queueForPriority(task.Priority)),
	}

	t := asynq.NewTask(task.Type, payload, opts...)
	if _, err := q.client.EnqueueContext(ctx, t); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// CancelTask removes a pending task from whichever queue holds it.
// Tasks already being processed finish their current stage.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	var lastErr error
	for _, queueName := range []string{QueueCritical, QueueDefault, QueueLow} {
		if err := q.inspector.DeleteTask(queueName, taskID); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("failed to cancel task %s: %w", taskID, lastErr)
}

// Close releases the underlying redis connections.
func (q *AsynqQueue) Close() error {
	return q.client.Close()
}

// queueForPriority maps batch priority 1-10 onto the three drain
// queues.
func queueForPriority(priority int) string {
	switch {
	case priority >= 8:
		return QueueCritical
	case priority >= 4:
		return QueueDefault
	default:
		return QueueLow
	}
}
