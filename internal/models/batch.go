package models

import (
	"time"
)

// BatchStatus tracks a batch job as a whole.
type BatchStatus string

const (
	BatchPending         BatchStatus = "pending"
	BatchRunning         BatchStatus = "running"
	BatchCompleted       BatchStatus = "completed"
	BatchPartiallyFailed BatchStatus = "partially_failed"
	BatchCancelled       BatchStatus = "cancelled"
)

// BatchJob is a prioritized group of documents scheduled together.
// Priority ranges 1 (lowest) to 10 (highest); higher-priority batches
// are drained first but a running document is never preempted.
type BatchJob struct {
	BatchID     string      `json:"batchId"`
	DocumentIDs []string    `json:"documentIds"`
	Status      BatchStatus `json:"status"`
	Priority    int         `json:"priority"`
	DoneCount   int         `json:"doneCount"`
	FailedCount int         `json:"failedCount"`
	CreatedAt   time.Time   `json:"createdAt"`
	CompletedAt time.Time   `json:"completedAt,omitempty"`
}

// Terminal reports whether every document in the batch reached a
// terminal state.
func (b *BatchJob) Terminal() bool {
	return b.DoneCount+b.FailedCount >= len(b.DocumentIDs)
}
