package models

import (
	"time"
)

// DocumentType classifies a legal document by its content.
type DocumentType string

const (
	TypeContract DocumentType = "contract"
	TypeCaseLaw  DocumentType = "case_law"
	TypeBrief    DocumentType = "brief"
	TypeStatute  DocumentType = "statute"
	TypeOther    DocumentType = "other"
)

// DocumentStatus tracks a document through the pipeline.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusValidated DocumentStatus = "validated"
	StatusAnalyzing DocumentStatus = "analyzing"
	StatusAnalyzed  DocumentStatus = "analyzed"
	StatusFailed    DocumentStatus = "failed"
)

// Document is a single legal text unit submitted for analysis.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Type      DocumentType   `json:"type"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Stage identifies the pipeline stage a processing job is in.
type Stage string

const (
	StageValidation  Stage = "validation"
	StageMetadata    Stage = "metadata"
	StageAnalysis    Stage = "analysis"
	StageEmbedding   Stage = "embedding"
	StageAggregation Stage = "aggregation"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// ProcessingJob is one tracked attempt to carry a document through the
// pipeline. At most one active job exists per document; exclusivity is
// enforced by the store's per-document lease.
type ProcessingJob struct {
	JobID        string    `json:"jobId"`
	DocumentID   string    `json:"documentId"`
	Stage        Stage     `json:"stage"`
	AttemptCount int       `json:"attemptCount"`
	LastError    string    `json:"lastError,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// StructuredDataKeys is the fixed extraction schema. Every
// AnalysisResult carries all of these keys; unextractable fields are
// null, never omitted.
var StructuredDataKeys = []string{
	"case_number",
	"parties",
	"dates",
	"monetary_amount",
	"legal_issues",
}

// ForecastPoint is one step of an outcome forecast.
type ForecastPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	LowerBound float64   `json:"lowerBound"`
	UpperBound float64   `json:"upperBound"`
}

// AnalysisResult is the versioned, immutable output of analyzing one
// document. Nil sub-results mark analysis operations that failed
// permanently; the matching entry in Errors records why.
type AnalysisResult struct {
	DocumentID       string                 `json:"documentId"`
	AnalysisVersion  int                    `json:"analysisVersion"`
	Summary          *string                `json:"summary"`
	StructuredData   map[string]interface{} `json:"structuredData"`
	IsUrgent         *bool                  `json:"isUrgent"`
	Forecast         []ForecastPoint        `json:"forecast"`
	ConfidenceScores map[string]float64     `json:"confidenceScores"`
	NeedsReview      bool                   `json:"needsReview"`
	Degraded         bool                   `json:"degraded"`
	Errors           map[string]string      `json:"errors,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
}

// Embedding is the current semantic vector for a document. Exactly one
// per document; re-embedding replaces the prior vector.
type Embedding struct {
	DocumentID string    `json:"documentId"`
	Vector     []float32 `json:"vector"`
	ModelID    string    `json:"modelId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SimilarityMatch is one ranked candidate from a similarity query.
type SimilarityMatch struct {
	DocumentID string  `json:"documentId"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}
