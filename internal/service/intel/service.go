package intel

import (
	"context"

	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/pkg/queue"
)

// ResultStatus is the caller-visible processing state of a document.
type ResultStatus string

const (
	ResultPending  ResultStatus = "pending"
	ResultComplete ResultStatus = "complete"
	ResultFailed   ResultStatus = "failed"
)

// ResultView is what GetResult returns: a populated result, a pending
// marker, or an explicit failure descriptor. Never a partial success.
type ResultView struct {
	DocumentID string                 `json:"documentId"`
	Status     ResultStatus           `json:"status"`
	Result     *models.AnalysisResult `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// SimilarQuery asks for documents semantically close to either an
// existing document or raw text.
type SimilarQuery struct {
	DocumentID string
	Text       string
	TopK       int
	Threshold  float64
}

// Pipeline is the document intelligence service surface.
type Pipeline interface {
	// Submit enqueues a document for processing. Idempotent on a
	// caller-supplied ID: the second call observes the first's
	// outcome instead of creating another job.
	Submit(ctx context.Context, id, content string) (string, bool, error)

	GetResult(ctx context.Context, documentID string) (*ResultView, error)

	// FindSimilar returns ranked nearest documents. A document with
	// no current embedding yields an empty result, not an error.
	FindSimilar(ctx context.Context, query *SimilarQuery) ([]models.SimilarityMatch, error)

	SubmitBatch(ctx context.Context, documentIDs []string, priority int) (string, error)
	GetBatchStatus(ctx context.Context, batchID string) (*models.BatchJob, error)
	CancelBatch(ctx context.Context, batchID string) error

	// ProcessDocument is the worker entrypoint: it drives one
	// document through every pipeline stage under the per-document
	// lease.
	ProcessDocument(ctx context.Context, task *queue.Task) error

	// CleanupArchive drops archived blobs older than the retention
	// window.
	CleanupArchive(ctx context.Context) error
}
