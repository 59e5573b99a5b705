package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/config"
	"github.com/stemsi/certify-backend/internal/model"
)

const (
	CheckpointBatchSize    = 50
	CheckpointBatchTimeout = 2 * time.Second
	CheckpointPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
	CheckpointRetryDelay   = 3 * time.Second
)

// CheckpointStore persists session checkpoints to the durable record.
type CheckpointStore interface {
	BulkCheckpoint(ctx context.Context, batch []model.SessionCheckpoint) error
	Checkpoint(ctx context.Context, cp model.SessionCheckpoint) error
}

// CheckpointWorker consumes the checkpoint queue and writes batches to PostgreSQL.
type CheckpointWorker struct {
	store CheckpointStore
	rdb   *redis.Client
	key   string
	log   zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
	retryDelay   time.Duration
}

// NewCheckpointWorker creates a new CheckpointWorker.
func NewCheckpointWorker(store CheckpointStore, rdb *redis.Client, log zerolog.Logger) *CheckpointWorker {
	return &CheckpointWorker{
		store:        store,
		rdb:          rdb,
		key:          config.WorkerKey.PersistSessionCheckpointsQueue,
		log:          log.With().Str("component", "checkpoint_worker").Logger(),
		batchSize:    CheckpointBatchSize,
		batchTimeout: CheckpointBatchTimeout,
		pollTimeout:  CheckpointPollTimeout,
		retryDelay:   CheckpointRetryDelay,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start runs until ctx is cancelled, then flushes and drains. Call in a goroutine.
func (w *CheckpointWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CheckpointWorker started")

	batch := make([]model.SessionCheckpoint, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested, flushing remaining batch")
			w.flush(context.Background(), batch)
			w.drain(context.Background())
			w.log.Info().Msg("CheckpointWorker stopped")
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, w.pollTimeout, w.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping")
			sleep(ctx, w.retryDelay)
			continue
		}
		if len(item) < 2 {
			continue
		}

		var cp model.SessionCheckpoint
		if err := json.Unmarshal([]byte(item[1]), &cp); err != nil {
			w.log.Error().Err(err).Msg("Invalid checkpoint payload, dropping")
			continue
		}
		batch = append(batch, cp)
	}
}

// ----------------------------------------------------------------
// Batch write with row-by-row fallback
// ----------------------------------------------------------------

// flush writes batch in one statement. On failure each checkpoint is retried
// alone and the ones that still fail go back on the queue.
func (w *CheckpointWorker) flush(ctx context.Context, batch []model.SessionCheckpoint) {
	if len(batch) == 0 {
		return
	}

	err := w.store.BulkCheckpoint(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Checkpoint batch persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk checkpoint failed, using fallback")

	for _, cp := range batch {
		if err := w.store.Checkpoint(ctx, cp); err != nil {
			w.log.Error().Err(err).Str("session_id", cp.SessionID).Msg("Checkpoint failed, requeueing")
			w.requeue(ctx, cp)
		}
	}
}

func (w *CheckpointWorker) requeue(ctx context.Context, cp model.SessionCheckpoint) {
	raw, err := json.Marshal(cp)
	if err != nil {
		return
	}
	if err := w.rdb.RPush(ctx, w.key, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("session_id", cp.SessionID).Msg("Requeue failed, checkpoint lost")
	}
}

// drain persists whatever is still queued. It stops at the first failure and
// leaves the rest for the next process.
func (w *CheckpointWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, w.key).Result()
		if err != nil {
			break
		}

		var cp model.SessionCheckpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.store.Checkpoint(ctx, cp); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.LPush(ctx, w.key, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining checkpoints")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
