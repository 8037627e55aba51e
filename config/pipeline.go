package config

import (
	"sync"
	"time"
)

var (
	pipelineOnce   sync.Once
	pipelineConfig *PipelineConfig
)

// PipelineConfig controls document processing behavior.
type PipelineConfig struct {
	MinContentLength int
	ForecastHorizon  int
	EmbeddingDim     int
	MaxEmbedChars    int

	OperationTimeout time.Duration
	DocumentDeadline time.Duration
	MaxAttempts      int

	ConfidenceFloor float64
	DefaultTopK     int

	WorkerConcurrency int
	LeaseTTL          time.Duration
	RetentionPeriod   time.Duration
	CleanupInterval   time.Duration
}

func GetPipelineConfig() *PipelineConfig {
	pipelineOnce.Do(func() {
		loadEnv()

		pipelineConfig = &PipelineConfig{
			MinContentLength: getEnvInt("PIPELINE_MIN_CONTENT_LENGTH", 100),
			ForecastHorizon:  getEnvInt("PIPELINE_FORECAST_HORIZON", 7),
			EmbeddingDim:     getEnvInt("PIPELINE_EMBEDDING_DIM", 768),
			MaxEmbedChars:    getEnvInt("PIPELINE_MAX_EMBED_CHARS", 8000),

			OperationTimeout: getEnvDuration("PIPELINE_OPERATION_TIMEOUT", 30*time.Second),
			DocumentDeadline: getEnvDuration("PIPELINE_DOCUMENT_DEADLINE", 2*time.Minute),
			MaxAttempts:      getEnvInt("PIPELINE_MAX_ATTEMPTS", 3),

			ConfidenceFloor: getEnvFloat("PIPELINE_CONFIDENCE_FLOOR", 0.5),
			DefaultTopK:     getEnvInt("PIPELINE_DEFAULT_TOP_K", 10),

			WorkerConcurrency: getEnvInt("PIPELINE_WORKER_CONCURRENCY", 10),
			LeaseTTL:          getEnvDuration("PIPELINE_LEASE_TTL", 5*time.Minute),
			RetentionPeriod:   getEnvDuration("PIPELINE_RETENTION_PERIOD", 30*24*time.Hour),
			CleanupInterval:   getEnvDuration("PIPELINE_CLEANUP_INTERVAL", time.Hour),
		}
	})
	return pipelineConfig
}
