package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// DefaultTokenTTL matches the provider's token inactivity window.
const DefaultTokenTTL = 6 * time.Hour

// BatchCache keeps question batches and the provider token in process with TTL.
type BatchCache struct {
	ttl      time.Duration
	tokenTTL time.Duration
	clock    func() time.Time
	rnd      *rand.Rand

	mu      sync.RWMutex
	batches map[domain.BatchKey]cachedBatch
	token   string
	tokenAt time.Time
}

type cachedBatch struct {
	batch     domain.QuestionBatch
	expiresAt time.Time
}

func NewBatchCache(ttl time.Duration) *BatchCache {
	return &BatchCache{
		ttl:      ttl,
		tokenTTL: DefaultTokenTTL,
		clock:    time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		batches:  make(map[domain.BatchKey]cachedBatch),
	}
}

// NewBatchCacheWithClock is test-only for deterministic expiry.
func NewBatchCacheWithClock(ttl time.Duration, now func() time.Time) *BatchCache {
	c := NewBatchCache(ttl)
	c.clock = now
	return c
}

func (c *BatchCache) GetBatch(_ context.Context, key domain.BatchKey) (domain.QuestionBatch, bool, error) {
	now := c.clock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.batches[key]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false, nil
	}
	return append(domain.QuestionBatch(nil), entry.batch...), true, nil
}

func (c *BatchCache) SetBatch(_ context.Context, key domain.BatchKey, batch domain.QuestionBatch) error {
	if c.ttl <= 0 {
		return nil
	}
	expiresAt := c.clock().Add(c.ttlWithJitter())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches[key] = cachedBatch{
		batch:     append(domain.QuestionBatch(nil), batch...),
		expiresAt: expiresAt,
	}
	return nil
}

func (c *BatchCache) DeleteBatch(_ context.Context, key domain.BatchKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.batches, key)
	return nil
}

func (c *BatchCache) GetToken(_ context.Context) (string, bool, error) {
	now := c.clock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || now.Sub(c.tokenAt) >= c.tokenTTL {
		return "", false, nil
	}
	return c.token, true, nil
}

func (c *BatchCache) SetToken(_ context.Context, token string) error {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.tokenAt = now
	return nil
}

func (c *BatchCache) DeleteToken(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	return nil
}

func (c *BatchCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
