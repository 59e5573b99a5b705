package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/certify-backend/internal/config"
	"github.com/stemsi/certify-backend/internal/model"
)

// CheckpointQueue pushes session checkpoints onto the Redis list consumed by
// CheckpointWorker.
type CheckpointQueue struct {
	rdb *redis.Client
	key string
}

// NewCheckpointQueue creates a queue on the persist_session_checkpoints list.
func NewCheckpointQueue(rdb *redis.Client) *CheckpointQueue {
	return &CheckpointQueue{rdb: rdb, key: config.WorkerKey.PersistSessionCheckpointsQueue}
}

// Publish enqueues cp.
func (q *CheckpointQueue) Publish(ctx context.Context, cp model.SessionCheckpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, raw).Err()
}

// Len returns the number of queued checkpoints.
func (q *CheckpointQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
