package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/internal/pipeline/analysis"
	"github.com/feichai0017/legal-intel/internal/store"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

// Aggregator is the single writer of AnalysisResult. It merges
// orchestrator output and embedding status into one immutable,
// versioned record and persists it through the store's optimistic
// version check.
type Aggregator struct {
	store           store.Store
	confidenceFloor float64
	logger          logger.Logger
}

func NewAggregator(st store.Store, confidenceFloor float64, log logger.Logger) *Aggregator {
	return &Aggregator{
		store:           st,
		confidenceFloor: confidenceFloor,
		logger:          log,
	}
}

// Aggregate builds and persists the next result version for the
// document. A stale version is rejected by the store with
// models.ErrConcurrencyConflict, never overwritten.
func (a *Aggregator) Aggregate(ctx context.Context, doc *models.Document, out *analysis.Output, embedded bool, degraded bool) (*models.AnalysisResult, error) {
	latest, err := a.store.LatestResultVersion(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(out.ConfidenceScores))
	for op, score := range out.ConfidenceScores {
		if degraded {
			// Degraded metadata fed the prompts; trust the answers less.
			score *= 0.8
		}
		scores[op] = score
	}

	errs := make(map[string]string, len(out.Errors)+1)
	for op, msg := range out.Errors {
		errs[op] = msg
	}
	if !embedded {
		errs["embedding"] = "no current embedding; document excluded from similarity results"
	}

	// Quality gate: structured extraction below the floor stores the
	// result flagged for review rather than rejecting it.
	needsReview := out.StructuredData != nil && scores[analysis.OpExtract] < a.confidenceFloor

	result := &models.AnalysisResult{
		DocumentID:       doc.ID,
		AnalysisVersion:  latest + 1,
		Summary:          out.Summary,
		StructuredData:   out.StructuredData,
		IsUrgent:         out.IsUrgent,
		Forecast:         out.Forecast,
		ConfidenceScores: scores,
		NeedsReview:      needsReview,
		Degraded:         degraded,
		Errors:           errs,
		CreatedAt:        time.Now(),
	}

	if err := a.store.SaveResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to persist analysis result: %w", err)
	}

	a.logger.Info("Analysis result aggregated",
		logger.String("documentId", doc.ID),
		logger.Int("version", result.AnalysisVersion),
		logger.Bool("needsReview", needsReview),
		logger.Bool("degraded", degraded),
	)
	return result, nil
}
