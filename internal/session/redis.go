package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/config"
	"github.com/stemsi/certify-backend/internal/model"
)

// minTTL keeps an already-late session around long enough to be auto-submitted.
const minTTL = time.Minute

// RedisStore keeps each session as a JSON blob with a TTL, plus a sorted set
// of open session ids scored by deadline for ListExpired.
type RedisStore struct {
	rdb   *redis.Client
	grace time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(rdb *redis.Client, grace time.Duration, log zerolog.Logger) *RedisStore {
	return &RedisStore{
		rdb:   rdb,
		grace: grace,
		now:   time.Now,
		log:   log.With().Str("component", "session_store").Logger(),
	}
}

func (r *RedisStore) Get(ctx context.Context, id string) (*model.TestSession, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.TestSessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s model.TestSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Set(ctx context.Context, s *model.TestSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := retention(s, r.grace).Sub(r.now())
	if ttl < minTTL {
		ttl = minTTL
	}

	index := config.CacheKey.TestSessionDeadlineIndex()
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, config.CacheKey.TestSessionKey(s.ID), raw, ttl)
		if s.IsOpen() {
			pipe.ZAdd(ctx, index, redis.Z{
				Score:  float64(s.Deadline().UnixMilli()),
				Member: s.ID,
			})
		} else {
			pipe.ZRem(ctx, index, s.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, config.CacheKey.TestSessionKey(id))
		pipe.ZRem(ctx, config.CacheKey.TestSessionDeadlineIndex(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) ListExpired(ctx context.Context, now time.Time) ([]*model.TestSession, error) {
	index := config.CacheKey.TestSessionDeadlineIndex()
	ids, err := r.rdb.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = config.CacheKey.TestSessionKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load expired sessions: %w", err)
	}

	var (
		out   []*model.TestSession
		stale []any
	)
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var s model.TestSession
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			r.log.Warn().Err(err).Str("session_id", ids[i]).Msg("Dropping undecodable session from deadline index")
			stale = append(stale, ids[i])
			continue
		}
		if !s.IsOpen() {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, &s)
	}

	if len(stale) > 0 {
		if err := r.rdb.ZRem(ctx, index, stale...).Err(); err != nil {
			r.log.Warn().Err(err).Int("count", len(stale)).Msg("Failed to prune deadline index")
		}
	}
	return out, nil
}
