package store

import (
	"context"
	"time"

	"github.com/feichai0017/legal-intel/internal/models"
)

// Store is the keyed persistence layer for documents, processing jobs,
// versioned analysis results, current embeddings and batch jobs. All
// writes that guard an invariant (lease acquisition, result version,
// batch counters) are conditional; a lost race surfaces as
// models.ErrConcurrencyConflict or a false acquisition, never as a
// silent overwrite.
type Store interface {
	// CreateDocument inserts the document if no document with its ID
	// exists. Returns false when the ID is already taken; the stored
	// document is left untouched in that case.
	CreateDocument(ctx context.Context, doc *models.Document) (bool, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error

	// AcquireLease takes the per-document processing lease for owner.
	// At most one owner holds the lease at a time; the TTL bounds how
	// long a crashed worker can block reprocessing.
	AcquireLease(ctx context.Context, documentID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, documentID, owner string) error

	SaveJob(ctx context.Context, job *models.ProcessingJob) error
	GetJob(ctx context.Context, documentID string) (*models.ProcessingJob, error)

	// SaveResult persists a new analysis result version. The write is
	// rejected with models.ErrConcurrencyConflict unless
	// result.AnalysisVersion is exactly one above the latest stored
	// version (or 1 when none exists).
	SaveResult(ctx context.Context, result *models.AnalysisResult) error
	LatestResult(ctx context.Context, documentID string) (*models.AnalysisResult, error)
	LatestResultVersion(ctx context.Context, documentID string) (int, error)

	// SaveEmbedding replaces the document's current embedding.
	SaveEmbedding(ctx context.Context, emb *models.Embedding) error
	GetEmbedding(ctx context.Context, documentID string) (*models.Embedding, error)
	ListEmbeddings(ctx context.Context) ([]*models.Embedding, error)
	DeleteEmbedding(ctx context.Context, documentID string) error

	CreateBatch(ctx context.Context, batch *models.BatchJob) error
	GetBatch(ctx context.Context, batchID string) (*models.BatchJob, error)
	UpdateBatchStatus(ctx context.Context, batchID string, status models.BatchStatus) error

	// MarkBatchDocument records one document of the batch reaching a
	// terminal state and returns the updated batch. When the last
	// document lands, the batch status flips to completed or
	// partially_failed.
	MarkBatchDocument(ctx context.Context, batchID string, failed bool) (*models.BatchJob, error)
}
