package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/domain"
)

// DefaultTokenTTL matches the provider's token inactivity window.
const DefaultTokenTTL = 6 * time.Hour

const tokenKey = "trivia:token"

// BatchCache stores question batches as JSON strings so every instance shares them.
// Batches live at trivia:batch:{category}:{difficulty}:{amount}; the provider token
// at trivia:token.
type BatchCache struct {
	client   *redis.Client
	ttl      time.Duration
	tokenTTL time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewBatchCache(client *redis.Client, ttl time.Duration) *BatchCache {
	return &BatchCache{
		client:   client,
		ttl:      ttl,
		tokenTTL: DefaultTokenTTL,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *BatchCache) GetBatch(ctx context.Context, key domain.BatchKey) (domain.QuestionBatch, bool, error) {
	raw, err := c.client.Get(ctx, batchKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get batch: %w", err)
	}
	var batch domain.QuestionBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, false, fmt.Errorf("decode batch: %w", err)
	}
	return batch, true, nil
}

func (c *BatchCache) SetBatch(ctx context.Context, key domain.BatchKey, batch domain.QuestionBatch) error {
	if c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := c.client.Set(ctx, batchKey(key), raw, c.ttlWithJitter()).Err(); err != nil {
		return fmt.Errorf("set batch: %w", err)
	}
	return nil
}

func (c *BatchCache) DeleteBatch(ctx context.Context, key domain.BatchKey) error {
	return c.client.Del(ctx, batchKey(key)).Err()
}

func (c *BatchCache) GetToken(ctx context.Context) (string, bool, error) {
	token, err := c.client.Get(ctx, tokenKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get token: %w", err)
	}
	return token, token != "", nil
}

func (c *BatchCache) SetToken(ctx context.Context, token string) error {
	return c.client.Set(ctx, tokenKey, token, c.tokenTTL).Err()
}

func (c *BatchCache) DeleteToken(ctx context.Context) error {
	return c.client.Del(ctx, tokenKey).Err()
}

func batchKey(key domain.BatchKey) string {
	return fmt.Sprintf("trivia:batch:%d:%s:%d", key.CategoryID, key.Difficulty, key.Amount)
}

func (c *BatchCache) ttlWithJitter() time.Duration {
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
