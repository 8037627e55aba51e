package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/legal-intel/internal/models"
)

func TestCreateDocumentIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateDocument(ctx, &models.Document{ID: "doc-1", Content: "first"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateDocument(ctx, &models.Document{ID: "doc-1", Content: "second"})
	require.NoError(t, err)
	assert.False(t, created)

	// The first write wins.
	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "first", doc.Content)
}

func TestGetDocumentNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestLeaseExclusivity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acquired, err := s.AcquireLease(ctx, "doc-1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = s.AcquireLease(ctx, "doc-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	// The holder may re-acquire to extend.
	acquired, err = s.AcquireLease(ctx, "doc-1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Releasing with the wrong owner is a no-op.
	require.NoError(t, s.ReleaseLease(ctx, "doc-1", "worker-b"))
	acquired, err = s.AcquireLease(ctx, "doc-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, s.ReleaseLease(ctx, "doc-1", "worker-a"))
	acquired, err = s.AcquireLease(ctx, "doc-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLeaseExpires(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acquired, err := s.AcquireLease(ctx, "doc-1", "worker-a", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(25 * time.Millisecond)

	acquired, err = s.AcquireLease(ctx, "doc-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLeaseSingleWinnerUnderContention(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	results := make([]bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			acquired, err := s.AcquireLease(ctx, "doc-1", string(rune('a'+n)), time.Minute)
			assert.NoError(t, err)
			results[n] = acquired
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, acquired := range results {
		if acquired {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestSaveResultVersionChain(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	result := func(version int) *models.AnalysisResult {
		return &models.AnalysisResult{DocumentID: "doc-1", AnalysisVersion: version}
	}

	require.NoError(t, s.SaveResult(ctx, result(1)))

	// Duplicate and skipped versions are both stale writes.
	err := s.SaveResult(ctx, result(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConcurrencyConflict))

	err = s.SaveResult(ctx, result(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConcurrencyConflict))

	require.NoError(t, s.SaveResult(ctx, result(2)))

	version, err := s.LatestResultVersion(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	latest, err := s.LatestResult(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.AnalysisVersion)
}

func TestLatestResultNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.LatestResult(context.Background(), "doc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	version, err := s.LatestResultVersion(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func newBatch(t *testing.T, s *MemoryStore, docs ...string) *models.BatchJob {
	t.Helper()
	batch := &models.BatchJob{
		BatchID:     "batch-1",
		DocumentIDs: docs,
		Status:      models.BatchRunning,
		Priority:    5,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateBatch(context.Background(), batch))
	return batch
}

func TestMarkBatchDocumentCompletes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newBatch(t, s, "a", "b", "c")

	for i := 0; i < 2; i++ {
		batch, err := s.MarkBatchDocument(ctx, "batch-1", false)
		require.NoError(t, err)
		assert.Equal(t, models.BatchRunning, batch.Status)
	}

	batch, err := s.MarkBatchDocument(ctx, "batch-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, batch.Status)
	assert.Equal(t, 3, batch.DoneCount)
	assert.False(t, batch.CompletedAt.IsZero())
}

func TestMarkBatchDocumentPartialFailure(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newBatch(t, s, "a", "b", "c")

	_, err := s.MarkBatchDocument(ctx, "batch-1", false)
	require.NoError(t, err)
	_, err = s.MarkBatchDocument(ctx, "batch-1", true)
	require.NoError(t, err)

	batch, err := s.MarkBatchDocument(ctx, "batch-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPartiallyFailed, batch.Status)
	assert.Equal(t, 2, batch.DoneCount)
	assert.Equal(t, 1, batch.FailedCount)
}

func TestMarkBatchDocumentPreservesCancelled(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newBatch(t, s, "a", "b")

	require.NoError(t, s.UpdateBatchStatus(ctx, "batch-1", models.BatchCancelled))

	_, err := s.MarkBatchDocument(ctx, "batch-1", false)
	require.NoError(t, err)
	batch, err := s.MarkBatchDocument(ctx, "batch-1", true)
	require.NoError(t, err)

	assert.True(t, batch.Terminal())
	assert.Equal(t, models.BatchCancelled, batch.Status)
}

func TestEmbeddingReplaceAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveEmbedding(ctx, &models.Embedding{DocumentID: "b", Vector: []float32{1, 0}}))
	require.NoError(t, s.SaveEmbedding(ctx, &models.Embedding{DocumentID: "a", Vector: []float32{0, 1}}))
	require.NoError(t, s.SaveEmbedding(ctx, &models.Embedding{DocumentID: "a", Vector: []float32{1, 1}}))

	all, err := s.ListEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].DocumentID)
	assert.Equal(t, []float32{1, 1}, all[0].Vector)

	require.NoError(t, s.DeleteEmbedding(ctx, "a"))
	_, err = s.GetEmbedding(ctx, "a")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestGetDocumentReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.CreateDocument(ctx, &models.Document{ID: "doc-1", Content: "original"})
	require.NoError(t, err)

	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	doc.Content = "mutated"

	fresh, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.Content)
}
