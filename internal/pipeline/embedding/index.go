package embedding

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/feichai0017/legal-intel/internal/models"
)

// Metric selects the distance function for similarity queries.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricDot       Metric = "dot"
	MetricEuclidean Metric = "euclidean"
)

// Index is the in-process nearest-neighbor index over current document
// embeddings. Updates use write-then-swap: a replacement vector is
// fully built before the map entry flips, so concurrent readers never
// observe a partial overwrite. Documents without a current embedding
// simply have no entry and never appear in results.
type Index struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	metric  Metric
}

func NewIndex(metric Metric) *Index {
	if metric == "" {
		metric = MetricCosine
	}
	return &Index{
		vectors: make(map[string][]float32),
		metric:  metric,
	}
}

// Upsert replaces the document's vector atomically.
func (ix *Index) Upsert(documentID string, vector []float32) {
	cp := append([]float32(nil), vector...)

	ix.mu.Lock()
	ix.vectors[documentID] = cp
	ix.mu.Unlock()
}

// Remove drops a document from the index.
func (ix *Index) Remove(documentID string) {
	ix.mu.Lock()
	delete(ix.vectors, documentID)
	ix.mu.Unlock()
}

// Has reports whether the document has a current embedding.
func (ix *Index) Has(documentID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.vectors[documentID]
	return ok
}

// Vector returns a copy of the document's current vector.
func (ix *Index) Vector(documentID string) ([]float32, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	v, ok := ix.vectors[documentID]
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Search returns the topK nearest documents to query, excluding
// excludeID, filtered to matches with similarity >= threshold when
// threshold > 0.
func (ix *Index) Search(query []float32, topK int, threshold float64, excludeID string) ([]models.SimilarityMatch, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("empty query vector: %w", models.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = 10
	}

	ix.mu.RLock()
	matches := make([]models.SimilarityMatch, 0, len(ix.vectors))
	for id, v := range ix.vectors {
		if id == excludeID || len(v) != len(query) {
			continue
		}
		distance, similarity := ix.score(query, v)
		if threshold > 0 && similarity < threshold {
			continue
		}
		matches = append(matches, models.SimilarityMatch{
			DocumentID: id,
			Distance:   distance,
			Similarity: similarity,
		})
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].DocumentID < matches[j].DocumentID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (ix *Index) score(a, b []float32) (distance, similarity float64) {
	switch ix.metric {
	case MetricDot:
		dot := dotProduct(a, b)
		return -dot, dot
	case MetricEuclidean:
		d := euclidean(a, b)
		return d, 1 / (1 + d)
	default:
		sim := cosineSimilarity(a, b)
		return 1 - sim, sim
	}
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
