package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/feichai0017/legal-intel/internal/models"
)

type lease struct {
	owner   string
	expires time.Time
}

// MemoryStore is an in-process Store used in tests and single-node
// deployments. All conditional writes happen under one mutex, which
// gives the same at-most-once semantics the redis store gets from
// SetNX and WATCH.
type MemoryStore struct {
	mu         sync.Mutex
	documents  map[string]*models.Document
	leases     map[string]lease
	jobs       map[string]*models.ProcessingJob
	results    map[string][]*models.AnalysisResult
	embeddings map[string]*models.Embedding
	batches    map[string]*models.BatchJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:  make(map[string]*models.Document),
		leases:     make(map[string]lease),
		jobs:       make(map[string]*models.ProcessingJob),
		results:    make(map[string][]*models.AnalysisResult),
		embeddings: make(map[string]*models.Embedding),
		batches:    make(map[string]*models.BatchJob),
	}
}

func (s *MemoryStore) CreateDocument(ctx context.Context, doc *models.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; ok {
		return false, nil
	}
	cp := *doc
	s.documents[doc.ID] = &cp
	return true, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; !ok {
		return fmt.Errorf("document %s: %w", doc.ID, models.ErrNotFound)
	}
	cp := *doc
	s.documents[doc.ID] = &cp
	return nil
}

func (s *MemoryStore) AcquireLease(ctx context.Context, documentID, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if l, ok := s.leases[documentID]; ok && l.expires.After(now) && l.owner != owner {
		return false, nil
	}
	s.leases[documentID] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) ReleaseLease(ctx context.Context, documentID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[documentID]; ok && l.owner == owner {
		delete(s.leases, documentID)
	}
	return nil
}

func (s *MemoryStore) SaveJob(ctx context.Context, job *models.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *job
	s.jobs[job.DocumentID] = &cp
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, documentID string) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[documentID]
	if !ok {
		return nil, fmt.Errorf("job for document %s: %w", documentID, models.ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) SaveResult(ctx context.Context, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.results[result.DocumentID]
	latest := 0
	if len(versions) > 0 {
		latest = versions[len(versions)-1].AnalysisVersion
	}
	if result.AnalysisVersion != latest+1 {
		return fmt.Errorf("result version %d for document %s (latest %d): %w",
			result.AnalysisVersion, result.DocumentID, latest, models.ErrConcurrencyConflict)
	}
	cp := *result
	s.results[result.DocumentID] = append(versions, &cp)
	return nil
}

func (s *MemoryStore) LatestResult(ctx context.Context, documentID string) (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.results[documentID]
	if len(versions) == 0 {
		return nil, fmt.Errorf("result for document %s: %w", documentID, models.ErrNotFound)
	}
	cp := *versions[len(versions)-1]
	return &cp, nil
}

func (s *MemoryStore) LatestResultVersion(ctx context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.results[documentID]
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[len(versions)-1].AnalysisVersion, nil
}

func (s *MemoryStore) SaveEmbedding(ctx context.Context, emb *models.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *emb
	cp.Vector = append([]float32(nil), emb.Vector...)
	s.embeddings[emb.DocumentID] = &cp
	return nil
}

func (s *MemoryStore) GetEmbedding(ctx context.Context, documentID string) (*models.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emb, ok := s.embeddings[documentID]
	if !ok {
		return nil, fmt.Errorf("embedding for document %s: %w", documentID, models.ErrNotFound)
	}
	cp := *emb
	return &cp, nil
}

func (s *MemoryStore) ListEmbeddings(ctx context.Context) ([]*models.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Embedding, 0, len(s.embeddings))
	for _, emb := range s.embeddings {
		cp := *emb
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (s *MemoryStore) DeleteEmbedding(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.embeddings, documentID)
	return nil
}

func (s *MemoryStore) CreateBatch(ctx context.Context, batch *models.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *batch
	cp.DocumentIDs = append([]string(nil), batch.DocumentIDs...)
	s.batches[batch.BatchID] = &cp
	return nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, batchID string) (*models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, models.ErrNotFound)
	}
	cp := *batch
	return &cp, nil
}

func (s *MemoryStore) UpdateBatchStatus(ctx context.Context, batchID string, status models.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %s: %w", batchID, models.ErrNotFound)
	}
	batch.Status = status
	return nil
}

func (s *MemoryStore) MarkBatchDocument(ctx context.Context, batchID string, failed bool) (*models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, models.ErrNotFound)
	}
	if failed {
		batch.FailedCount++
	} else {
		batch.DoneCount++
	}
	if batch.Terminal() && batch.Status != models.BatchCancelled {
		if batch.FailedCount > 0 {
			batch.Status = models.BatchPartiallyFailed
		} else {
			batch.Status = models.BatchCompleted
		}
		batch.CompletedAt = time.Now()
	}
	cp := *batch
	return &cp, nil
}
