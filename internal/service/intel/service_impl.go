package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	cfg "github.com/feichai0017/legal-intel/config"
	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/internal/pipeline/aggregate"
	"github.com/feichai0017/legal-intel/internal/pipeline/analysis"
	"github.com/feichai0017/legal-intel/internal/pipeline/embedding"
	"github.com/feichai0017/legal-intel/internal/pipeline/metadata"
	"github.com/feichai0017/legal-intel/internal/pipeline/validate"
	"github.com/feichai0017/legal-intel/internal/store"
	"github.com/feichai0017/legal-intel/pkg/gateway"
	"github.com/feichai0017/legal-intel/pkg/logger"
	"github.com/feichai0017/legal-intel/pkg/queue"
	"github.com/feichai0017/legal-intel/pkg/storage"
)

// Service wires the pipeline stages together. One worker owns one
// document end to end; the store lease guarantees no two workers
// process the same document concurrently.
type Service struct {
	store        store.Store
	blobs        storage.Storage
	queue        queue.Queue
	validator    *validate.Validator
	extractor    *metadata.Extractor
	orchestrator *analysis.Orchestrator
	embedder     *embedding.Embedder
	index        *embedding.Index
	aggregator   *aggregate.Aggregator
	config       *cfg.PipelineConfig
	logger       logger.Logger
}

func NewService(
	st store.Store,
	blobs storage.Storage,
	q queue.Queue,
	gw gateway.Client,
	config *cfg.PipelineConfig,
	log logger.Logger,
) *Service {
	index := embedding.NewIndex(embedding.MetricCosine)

	return &Service{
		store:     st,
		blobs:     blobs,
		queue:     q,
		validator: validate.NewValidator(config.MinContentLength),
		extractor: metadata.NewExtractor(),
		orchestrator: analysis.NewOrchestrator(gw, analysis.Config{
			OperationTimeout: config.OperationTimeout,
			DocumentDeadline: config.DocumentDeadline,
			ForecastHorizon:  config.ForecastHorizon,
		}, log),
		embedder:   embedding.NewEmbedder(gw, st, index, cfg.GetGatewayConfig().EmbeddingModel, config.MaxEmbedChars, config.EmbeddingDim, log),
		index:      index,
		aggregator: aggregate.NewAggregator(st, config.ConfidenceFloor, log),
		config:     config,
		logger:     log,
	}
}

// GetService builds the production service from environment config.
func GetService(log logger.Logger) (*Service, error) {
	st, err := store.NewRedisStore(log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	blobs, err := storage.NewStorage(storage.StorageTypeMinio, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob storage: %w", err)
	}

	q, err := queue.GetQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	gatewayConfig := cfg.GetGatewayConfig()
	gw := gateway.New(gateway.NewOpenAIProvider(gatewayConfig), gatewayConfig, log)

	svc := NewService(st, blobs, q, gw, cfg.GetPipelineConfig(), log)
	if err := svc.WarmIndex(context.Background()); err != nil {
		log.Warn("Failed to warm similarity index", logger.Error(err))
	}
	return svc, nil
}

// WarmIndex loads persisted embeddings into the similarity index.
func (s *Service) WarmIndex(ctx context.Context) error {
	return s.embedder.WarmIndex(ctx)
}

// Submit implements Pipeline.Submit.
func (s *Service) Submit(ctx context.Context, id, content string) (string, bool, error) {
	if id == "" {
		id = uuid.New().String()
	}

	doc := &models.Document{
		ID:        id,
		Content:   content,
		Type:      models.TypeOther,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}

	created, err := s.store.CreateDocument(ctx, doc)
	if err != nil {
		return "", false, fmt.Errorf("failed to create document: %w", err)
	}
	if !created {
		// Idempotent resubmission: the first submission's job owns
		// this document.
		s.logger.Info("Duplicate submission ignored", logger.String("documentId", id))
		return id, false, nil
	}

	job := &models.ProcessingJob{
		JobID:      uuid.New().String(),
		DocumentID: id,
		Stage:      models.StageValidation,
		UpdatedAt:  time.Now(),
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return "", false, fmt.Errorf("failed to create processing job: %w", err)
	}

	s.archive(ctx, "raw/"+id, []byte(content))

	// Urgent-looking content schedules ahead; the authoritative urgency
	// flag still comes out of analysis.
	_, priorityHint := s.validator.Classify(content)

	task := &queue.Task{
		ID:         id,
		Type:       queue.TaskTypeDocumentProcess,
		DocumentID: id,
		Priority:   priorityHint,
		CreatedAt:  time.Now(),
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return "", false, fmt.Errorf("failed to enqueue document: %w", err)
	}

	s.logger.Info("Document submitted",
		logger.String("documentId", id),
		logger.Int("contentLength", len(content)),
		logger.Int("priority", priorityHint),
	)
	return id, true, nil
}

// GetResult implements Pipeline.GetResult.
func (s *Service) GetResult(ctx context.Context, documentID string) (*ResultView, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	switch doc.Status {
	case models.StatusAnalyzed:
		result, err := s.store.LatestResult(ctx, documentID)
		if err != nil {
			return nil, err
		}
		return &ResultView{DocumentID: documentID, Status: ResultComplete, Result: result}, nil

	case models.StatusFailed:
		view := &ResultView{DocumentID: documentID, Status: ResultFailed}
		if job, err := s.store.GetJob(ctx, documentID); err == nil {
			view.Error = job.LastError
		}
		return view, nil

	default:
		return &ResultView{DocumentID: documentID, Status: ResultPending}, nil
	}
}

// FindSimilar implements Pipeline.FindSimilar.
func (s *Service) FindSimilar(ctx context.Context, query *SimilarQuery) ([]models.SimilarityMatch, error) {
	topK := query.TopK
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}

	var vector []float32
	switch {
	case query.DocumentID != "":
		v, ok := s.index.Vector(query.DocumentID)
		if !ok {
			// No current embedding: empty result set, not an error.
			return []models.SimilarityMatch{}, nil
		}
		vector = v
	case strings.TrimSpace(query.Text) != "":
		v, err := s.embedder.EmbedText(ctx, query.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query text: %w", err)
		}
		vector = v
	default:
		return nil, fmt.Errorf("similar query needs a document id or text: %w", models.ErrInvalidInput)
	}

	return s.index.Search(vector, topK, query.Threshold, query.DocumentID)
}

// SubmitBatch implements Pipeline.SubmitBatch.
func (s *Service) SubmitBatch(ctx context.Context, documentIDs []string, priority int) (string, error) {
	if len(documentIDs) == 0 {
		return "", fmt.Errorf("batch needs at least one document: %w", models.ErrInvalidInput)
	}
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}

	batch := &models.BatchJob{
		BatchID:     uuid.New().String(),
		DocumentIDs: append([]string(nil), documentIDs...),
		Status:      models.BatchPending,
		Priority:    priority,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return "", err
	}

	for _, docID := range documentIDs {
		task := &queue.Task{
			ID:         batchTaskID(batch.BatchID, docID),
			Type:       queue.TaskTypeDocumentProcess,
			DocumentID: docID,
			BatchID:    batch.BatchID,
			Priority:   priority,
			CreatedAt:  time.Now(),
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			return "", fmt.Errorf("failed to enqueue document %s: %w", docID, err)
		}
	}

	if err := s.store.UpdateBatchStatus(ctx, batch.BatchID, models.BatchRunning); err != nil {
		return "", err
	}

	s.logger.Info("Batch submitted",
		logger.String("batchId", batch.BatchID),
		logger.Int("documents", len(documentIDs)),
		logger.Int("priority", priority),
	)
	return batch.BatchID, nil
}

// GetBatchStatus implements Pipeline.GetBatchStatus.
func (s *Service) GetBatchStatus(ctx context.Context, batchID string) (*models.BatchJob, error) {
	return s.store.GetBatch(ctx, batchID)
}

// CancelBatch implements Pipeline.CancelBatch. Queued documents are
// dropped; documents already being processed finish their current
// stage and stop advancing.
func (s *Service) CancelBatch(ctx context.Context, batchID string) error {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == models.BatchCompleted || batch.Status == models.BatchPartiallyFailed {
		return fmt.Errorf("batch %s already terminal: %w", batchID, models.ErrInvalidInput)
	}

	if err := s.store.UpdateBatchStatus(ctx, batchID, models.BatchCancelled); err != nil {
		return err
	}

	for _, docID := range batch.DocumentIDs {
		if err := s.queue.CancelTask(ctx, batchTaskID(batchID, docID)); err != nil {
			// Already running or already done; the cancelled batch
			// status stops further stage advancement.
			s.logger.Debug("Task not cancellable",
				logger.String("batchId", batchID),
				logger.String("documentId", docID),
			)
		}
	}

	s.logger.Info("Batch cancelled", logger.String("batchId", batchID))
	return nil
}

// ProcessDocument implements Pipeline.ProcessDocument: the per-document
// state machine. Each stage's side effects are atomic at the stage
// boundary; a cancelled batch or a failure never leaves a stage
// half-applied.
func (s *Service) ProcessDocument(ctx context.Context, task *queue.Task) error {
	owner := uuid.New().String()
	acquired, err := s.store.AcquireLease(ctx, task.DocumentID, owner, s.config.LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !acquired {
		s.logger.Warn("Document already leased, skipping",
			logger.String("documentId", task.DocumentID),
		)
		return nil
	}
	defer s.store.ReleaseLease(ctx, task.DocumentID, owner)

	if s.batchCancelled(ctx, task.BatchID) {
		return nil
	}

	doc, err := s.store.GetDocument(ctx, task.DocumentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.finishFailed(ctx, nil, task, err)
		}
		return err
	}

	job, err := s.store.GetJob(ctx, task.DocumentID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		job = &models.ProcessingJob{
			JobID:      uuid.New().String(),
			DocumentID: task.DocumentID,
			Stage:      models.StageValidation,
		}
	}
	job.AttemptCount++

	s.logger.Info("Processing document",
		logger.String("documentId", doc.ID),
		logger.String("batchId", task.BatchID),
		logger.Int("attempt", job.AttemptCount),
	)

	// Stage: validation.
	if err := s.setStage(ctx, job, models.StageValidation); err != nil {
		return err
	}
	if err := s.validator.Validate(doc); err != nil {
		// Malformed input never retries.
		return s.finishFailed(ctx, doc, task, err)
	}
	docType, _ := s.validator.Classify(doc.Content)
	doc.Type = docType
	doc.Status = models.StatusValidated
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	if s.batchCancelled(ctx, task.BatchID) {
		return nil
	}

	// Stage: metadata. Never fails the pipeline.
	if err := s.setStage(ctx, job, models.StageMetadata); err != nil {
		return err
	}
	meta, degraded := s.extractor.Extract(doc.Content)

	if s.batchCancelled(ctx, task.BatchID) {
		return nil
	}

	// Stage: analysis.
	if err := s.setStage(ctx, job, models.StageAnalysis); err != nil {
		return err
	}
	doc.Status = models.StatusAnalyzing
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	out, err := s.orchestrator.Analyze(ctx, doc, meta)
	if err != nil {
		return s.handleStageError(ctx, doc, job, task, err)
	}

	if s.batchCancelled(ctx, task.BatchID) {
		return nil
	}

	// Stage: embedding. Failure is absorbed; the document is simply
	// absent from similarity results until a later run succeeds.
	if err := s.setStage(ctx, job, models.StageEmbedding); err != nil {
		return err
	}
	embedded := true
	if err := s.embedder.EmbedDocument(ctx, doc); err != nil {
		embedded = false
		s.logger.Warn("Embedding failed, continuing without",
			logger.String("documentId", doc.ID),
			logger.Error(err),
		)
	}

	if s.batchCancelled(ctx, task.BatchID) {
		return nil
	}

	// Stage: aggregation.
	if err := s.setStage(ctx, job, models.StageAggregation); err != nil {
		return err
	}
	result, err := s.aggregator.Aggregate(ctx, doc, out, embedded, degraded)
	if err != nil {
		return s.handleStageError(ctx, doc, job, task, err)
	}

	if data, err := json.Marshal(result); err == nil {
		s.archive(ctx, fmt.Sprintf("results/%s/v%d", doc.ID, result.AnalysisVersion), data)
	}

	doc.Status = models.StatusAnalyzed
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	if err := s.setStage(ctx, job, models.StageDone); err != nil {
		return err
	}
	s.markBatchDocument(ctx, task.BatchID, false)

	s.logger.Info("Document processing completed",
		logger.String("documentId", doc.ID),
		logger.Int("resultVersion", result.AnalysisVersion),
	)
	return nil
}

// CleanupArchive implements Pipeline.CleanupArchive.
func (s *Service) CleanupArchive(ctx context.Context) error {
	if s.blobs == nil {
		return nil
	}
	threshold := time.Now().Add(-s.config.RetentionPeriod)
	if err := s.blobs.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup archive: %w", err)
	}
	s.logger.Info("Archive cleanup completed", logger.Time("threshold", threshold))
	return nil
}

// handleStageError routes a stage failure: transient errors with
// attempts left go back to the queue for backoff and retry, anything
// else fails the document permanently.
func (s *Service) handleStageError(ctx context.Context, doc *models.Document, job *models.ProcessingJob, task *queue.Task, stageErr error) error {
	job.LastError = stageErr.Error()
	job.UpdatedAt = time.Now()
	if err := s.store.SaveJob(ctx, job); err != nil {
		s.logger.Error("Failed to record stage error", logger.Error(err))
	}

	retryable := models.Transient(stageErr) || errors.Is(stageErr, models.ErrConcurrencyConflict)
	if retryable && job.AttemptCount < s.config.MaxAttempts {
		s.logger.Warn("Document attempt failed, will retry",
			logger.String("documentId", doc.ID),
			logger.Int("attempt", job.AttemptCount),
			logger.Error(stageErr),
		)
		return stageErr
	}

	return s.finishFailed(ctx, doc, task, stageErr)
}

// finishFailed marks the document permanently failed and records the
// terminal error for diagnostics. Returns nil so the queue does not
// retry.
func (s *Service) finishFailed(ctx context.Context, doc *models.Document, task *queue.Task, cause error) error {
	if doc != nil {
		doc.Status = models.StatusFailed
		if err := s.store.UpdateDocument(ctx, doc); err != nil {
			s.logger.Error("Failed to mark document failed", logger.Error(err))
		}
	}

	if job, err := s.store.GetJob(ctx, task.DocumentID); err == nil {
		job.Stage = models.StageFailed
		job.LastError = cause.Error()
		job.UpdatedAt = time.Now()
		if err := s.store.SaveJob(ctx, job); err != nil {
			s.logger.Error("Failed to record job failure", logger.Error(err))
		}
	}

	s.markBatchDocument(ctx, task.BatchID, true)

	s.logger.Error("Document failed permanently",
		logger.String("documentId", task.DocumentID),
		logger.Error(cause),
	)
	return nil
}

func (s *Service) setStage(ctx context.Context, job *models.ProcessingJob, stage models.Stage) error {
	job.Stage = stage
	job.UpdatedAt = time.Now()
	return s.store.SaveJob(ctx, job)
}

func (s *Service) batchCancelled(ctx context.Context, batchID string) bool {
	if batchID == "" {
		return false
	}
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return false
	}
	return batch.Status == models.BatchCancelled
}

func (s *Service) markBatchDocument(ctx context.Context, batchID string, failed bool) {
	if batchID == "" {
		return
	}
	batch, err := s.store.MarkBatchDocument(ctx, batchID, failed)
	if err != nil {
		s.logger.Error("Failed to update batch counters",
			logger.String("batchId", batchID),
			logger.Error(err),
		)
		return
	}
	if batch.Terminal() {
		s.logger.Info("Batch reached terminal state",
			logger.String("batchId", batchID),
			logger.String("status", string(batch.Status)),
			logger.Int("done", batch.DoneCount),
			logger.Int("failed", batch.FailedCount),
		)
	}
}

// archive writes a blob best-effort; the keyed store remains the
// source of truth.
func (s *Service) archive(ctx context.Context, key string, data []byte) {
	if s.blobs == nil {
		return
	}
	if _, err := s.blobs.Put(ctx, bytes.NewReader(data), key); err != nil {
		s.logger.Warn("Failed to archive blob",
			logger.String("key", key),
			logger.Error(err),
		)
	}
}

func batchTaskID(batchID, documentID string) string {
	return batchID + ":" + documentID
}
