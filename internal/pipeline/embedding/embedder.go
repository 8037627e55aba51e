package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/internal/store"
	"github.com/feichai0017/legal-intel/pkg/gateway"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

// Embedder generates document embeddings through the gateway and keeps
// the store and the in-process index in step. Embedding failures leave
// the document absent from the index; it is excluded from similarity
// results until a later run succeeds.
type Embedder struct {
	gw            gateway.Client
	store         store.Store
	index         *Index
	modelID       string
	maxInputChars int
	expectedDim   int
	logger        logger.Logger
}

// NewEmbedder creates an embedder. expectedDim 0 disables the vector
// dimension check.
func NewEmbedder(gw gateway.Client, st store.Store, index *Index, modelID string, maxInputChars, expectedDim int, log logger.Logger) *Embedder {
	if maxInputChars <= 0 {
		maxInputChars = 8000
	}
	return &Embedder{
		gw:            gw,
		store:         st,
		index:         index,
		modelID:       modelID,
		maxInputChars: maxInputChars,
		expectedDim:   expectedDim,
		logger:        log,
	}
}

// EmbedDocument embeds the document's content and replaces its current
// embedding in store and index.
func (e *Embedder) EmbedDocument(ctx context.Context, doc *models.Document) error {
	vector, err := e.EmbedText(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
	}
	if e.expectedDim > 0 && len(vector) != e.expectedDim {
		// A mis-sized vector would poison similarity queries.
		return fmt.Errorf("embedding for document %s has dimension %d, want %d: %w",
			doc.ID, len(vector), e.expectedDim, models.ErrPermanentService)
	}

	emb := &models.Embedding{
		DocumentID: doc.ID,
		Vector:     vector,
		ModelID:    e.modelID,
		CreatedAt:  time.Now(),
	}
	if err := e.store.SaveEmbedding(ctx, emb); err != nil {
		return err
	}
	e.index.Upsert(doc.ID, vector)

	e.logger.Info("Document embedded",
		logger.String("documentId", doc.ID),
		logger.Int("dimension", len(vector)),
	)
	return nil
}

// EmbedText embeds raw text, head-truncated deterministically to the
// gateway's maximum supported input length.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.gw.Embed(ctx, Truncate(text, e.maxInputChars))
}

// WarmIndex loads every current embedding from the store into the
// index, typically at startup.
func (e *Embedder) WarmIndex(ctx context.Context) error {
	embeddings, err := e.store.ListEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("failed to warm similarity index: %w", err)
	}
	for _, emb := range embeddings {
		e.index.Upsert(emb.DocumentID, emb.Vector)
	}

	e.logger.Info("Similarity index warmed",
		logger.Int("documents", len(embeddings)),
	)
	return nil
}

// Truncate keeps the first max runes of text. Head-truncation is the
// documented cutoff so repeated runs embed identical input.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
