package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfg "github.com/feichai0017/legal-intel/config"
	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

const (
	docKeyPrefix       = "doc:"
	jobKeyPrefix       = "job:"
	leaseKeyPrefix     = "lease:"
	resultKeyPrefix    = "result:"
	resultVerKeyPrefix = "resultver:"
	embeddingKeyPrefix = "embedding:"
	embeddingSetKey    = "embeddings"
	batchKeyPrefix     = "batch:"
)

// releaseLeaseScript deletes the lease only when the caller still owns
// it, so an expired lease taken over by another worker is never
// released by the original holder.
var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is the production Store. Conditional writes use SetNX
// (document creation, lease) and WATCH transactions (result versions,
// batch counters).
type RedisStore struct {
	client *redis.Client
	logger logger.Logger
}

func NewRedisStore(log logger.Logger) (*RedisStore, error) {
	redisConfig := cfg.GetRedisConfig()
	client := redis.NewClient(&redis.Options{
		Addr: redisConfig.Addr,
		DB:   redisConfig.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, logger: log}, nil
}

func (s *RedisStore) CreateDocument(ctx context.Context, doc *models.Document) (bool, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("failed to marshal document: %w", err)
	}

	created, err := s.client.SetNX(ctx, docKeyPrefix+doc.ID, data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to create document: %w", err)
	}
	return created, nil
}

func (s *RedisStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.getJSON(ctx, docKeyPrefix+id, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *RedisStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := s.client.Set(ctx, docKeyPrefix+doc.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (s *RedisStore) AcquireLease(ctx context.Context, documentID, owner string, ttl time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, leaseKeyPrefix+documentID, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return acquired, nil
}

func (s *RedisStore) ReleaseLease(ctx context.Context, documentID, owner string) error {
	if err := releaseLeaseScript.Run(ctx, s.client, []string{leaseKeyPrefix + documentID}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveJob(ctx context.Context, job *models.ProcessingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := s.client.Set(ctx, jobKeyPrefix+job.DocumentID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *RedisStore) GetJob(ctx context.Context, documentID string) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	if err := s.getJSON(ctx, jobKeyPrefix+documentID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *RedisStore) SaveResult(ctx context.Context, result *models.AnalysisResult) error {
	verKey := resultVerKeyPrefix + result.DocumentID
	resKey := fmt.Sprintf("%s%s:v%d", resultKeyPrefix, result.DocumentID, result.AnalysisVersion)

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		latest, err := tx.Get(ctx, verKey).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read result version: %w", err)
		}
		if result.AnalysisVersion != latest+1 {
			return fmt.Errorf("result version %d for document %s (latest %d): %w",
				result.AnalysisVersion, result.DocumentID, latest, models.ErrConcurrencyConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, resKey, data, 0)
			pipe.Set(ctx, verKey, result.AnalysisVersion, 0)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer moved the version while we were checking.
		return fmt.Errorf("result write for document %s lost version race: %w",
			result.DocumentID, models.ErrConcurrencyConflict)
	}
	return err
}

func (s *RedisStore) LatestResult(ctx context.Context, documentID string) (*models.AnalysisResult, error) {
	version, err := s.LatestResultVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("result for document %s: %w", documentID, models.ErrNotFound)
	}

	var result models.AnalysisResult
	key := fmt.Sprintf("%s%s:v%d", resultKeyPrefix, documentID, version)
	if err := s.getJSON(ctx, key, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *RedisStore) LatestResultVersion(ctx context.Context, documentID string) (int, error) {
	version, err := s.client.Get(ctx, resultVerKeyPrefix+documentID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read result version: %w", err)
	}
	return version, nil
}

func (s *RedisStore) SaveEmbedding(ctx context.Context, emb *models.Embedding) error {
	data, err := json.Marshal(emb)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, embeddingKeyPrefix+emb.DocumentID, data, 0)
		pipe.SAdd(ctx, embeddingSetKey, emb.DocumentID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return nil
}

func (s *RedisStore) GetEmbedding(ctx context.Context, documentID string) (*models.Embedding, error) {
	var emb models.Embedding
	if err := s.getJSON(ctx, embeddingKeyPrefix+documentID, &emb); err != nil {
		return nil, err
	}
	return &emb, nil
}

func (s *RedisStore) ListEmbeddings(ctx context.Context) ([]*models.Embedding, error) {
	ids, err := s.client.SMembers(ctx, embeddingSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}

	out := make([]*models.Embedding, 0, len(ids))
	for _, id := range ids {
		emb, err := s.GetEmbedding(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, nil
}

func (s *RedisStore) DeleteEmbedding(ctx context.Context, documentID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, embeddingKeyPrefix+documentID)
		pipe.SRem(ctx, embeddingSetKey, documentID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

func (s *RedisStore) CreateBatch(ctx context.Context, batch *models.BatchJob) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	if err := s.client.Set(ctx, batchKeyPrefix+batch.BatchID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (s *RedisStore) GetBatch(ctx context.Context, batchID string) (*models.BatchJob, error) {
	var batch models.BatchJob
	if err := s.getJSON(ctx, batchKeyPrefix+batchID, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *RedisStore) UpdateBatchStatus(ctx context.Context, batchID string, status models.BatchStatus) error {
	key := batchKeyPrefix + batchID
	txf := func(tx *redis.Tx) error {
		var batch models.BatchJob
		if err := s.getJSONTx(ctx, tx, key, &batch); err != nil {
			return err
		}
		batch.Status = status

		data, err := json.Marshal(&batch)
		if err != nil {
			return fmt.Errorf("failed to marshal batch: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}
	return s.client.Watch(ctx, txf, key)
}

func (s *RedisStore) MarkBatchDocument(ctx context.Context, batchID string, failed bool) (*models.BatchJob, error) {
	key := batchKeyPrefix + batchID
	var updated models.BatchJob

	txf := func(tx *redis.Tx) error {
		var batch models.BatchJob
		if err := s.getJSONTx(ctx, tx, key, &batch); err != nil {
			return err
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

		data, err := json.Marshal(&batch)
		if err != nil {
			return fmt.Errorf("failed to marshal batch: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			updated = batch
		}
		return err
	}

	// Counter updates from sibling workers retry until the CAS lands.
	for i := 0; i < 10; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, fmt.Errorf("batch %s counter update: %w", batchID, models.ErrConcurrencyConflict)
}

func (s *RedisStore) getJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("key %s: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) getJSONTx(ctx context.Context, tx *redis.Tx, key string, dest interface{}) error {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("key %s: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
