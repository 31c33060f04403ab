// Package cache keeps recall results in Redis. Entries of a knowledge base
// are invalidated together by bumping its generation counter, so stale keys
// simply expire.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"librag/internal/dto"
	"librag/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "librag:recall"

type RecallCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewRecallCache(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RecallCache {
	return &RecallCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Get returns the cached records for req. Any Redis failure is a miss.
func (c *RecallCache) Get(ctx context.Context, req dto.RecallRequest) ([]dto.ParagraphRecord, bool) {
	key, err := c.key(ctx, req)
	if err != nil {
		c.logger.Warn("Recall cache unavailable", zap.Error(err))
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Recall cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var records []dto.ParagraphRecord
	if err := json.Unmarshal(data, &records); err != nil {
		c.logger.Warn("Dropping undecodable recall cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}
	return records, true
}

func (c *RecallCache) Set(ctx context.Context, req dto.RecallRequest, records []dto.ParagraphRecord) {
	key, err := c.key(ctx, req)
	if err != nil {
		c.logger.Warn("Recall cache unavailable", zap.Error(err))
		return
	}
	data, err := json.Marshal(records)
	if err != nil {
		c.logger.Warn("Failed to encode recall result", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Recall cache write failed", zap.Error(err))
	}
}

// Invalidate drops every cached recall of kbID.
func (c *RecallCache) Invalidate(ctx context.Context, kbID int64) error {
	if err := c.client.Incr(ctx, generationKey(kbID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate recall cache: %w", err)
	}
	return nil
}

func (c *RecallCache) key(ctx context.Context, req dto.RecallRequest) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(req.KBID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return entryKey(req, gen), nil
}

func generationKey(kbID int64) string {
	return fmt.Sprintf("%s:gen:%d", keyPrefix, kbID)
}

func entryKey(req dto.RecallRequest, gen int64) string {
	threshold := "none"
	if req.ScoreThreshold != nil {
		threshold = fmt.Sprint(*req.ScoreThreshold)
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s\x00%t\x00%s\x00%t",
		req.KBID, req.Question, req.HasSourceText, threshold, req.Scoring())))
	return fmt.Sprintf("%s:%d:%d:%s", keyPrefix, req.KBID, gen, hex.EncodeToString(h[:]))
}
