package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"trivia-quiz-service/internal/domain"
)

// QuestionSource is the remote trivia provider.
type QuestionSource interface {
	AcquireToken(ctx context.Context) (string, error)
	ResetToken(ctx context.Context, token string) (string, error)
	FetchBatch(ctx context.Context, params domain.QuizParams, token string) (domain.QuestionBatch, error)
	Categories(ctx context.Context) ([]domain.Category, error)
}

// BatchCache stores question batches per BatchKey and the shared provider token.
// Implementations report a miss with ok=false and a nil error.
type BatchCache interface {
	GetBatch(ctx context.Context, key domain.BatchKey) (domain.QuestionBatch, bool, error)
	SetBatch(ctx context.Context, key domain.BatchKey, batch domain.QuestionBatch) error
	DeleteBatch(ctx context.Context, key domain.BatchKey) error
	GetToken(ctx context.Context) (string, bool, error)
	SetToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

// DefaultFlightTimeout bounds provider work shared by concurrent loads.
const DefaultFlightTimeout = time.Minute

// BatchProvider resolves question batches through the cache and the provider,
// keeping one provider token for all sessions.
type BatchProvider struct {
	source        QuestionSource
	cache         BatchCache
	logger        *zap.SugaredLogger
	flightTimeout time.Duration
	sf            singleflight.Group
}

type ProviderOption func(*BatchProvider)

func WithFlightTimeout(d time.Duration) ProviderOption {
	return func(p *BatchProvider) { p.flightTimeout = d }
}

func NewBatchProvider(source QuestionSource, cache BatchCache, logger *zap.SugaredLogger, opts ...ProviderOption) *BatchProvider {
	p := &BatchProvider{source: source, cache: cache, logger: logger, flightTimeout: DefaultFlightTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadBatch returns a cached batch unless fresh is set, otherwise fetches one from
// the provider and caches it.
func (p *BatchProvider) LoadBatch(ctx context.Context, params domain.QuizParams, fresh bool) (domain.QuestionBatch, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	key := params.Key()

	if fresh {
		if err := p.cache.DeleteBatch(ctx, key); err != nil {
			p.logger.Warnw("failed to drop cached batch", "key", key, "err", err)
		}
		return p.fetch(ctx, params)
	}

	if batch, ok := p.cachedBatch(ctx, key); ok {
		return batch, nil
	}

	result, err := p.shared(ctx, batchFlightKey(key), func(ctx context.Context) (interface{}, error) {
		if batch, ok := p.cachedBatch(ctx, key); ok {
			return batch, nil
		}
		return p.fetch(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return result.(domain.QuestionBatch), nil
}

func (p *BatchProvider) cachedBatch(ctx context.Context, key domain.BatchKey) (domain.QuestionBatch, bool) {
	batch, ok, err := p.cache.GetBatch(ctx, key)
	if err != nil {
		p.logger.Warnw("batch cache read failed", "key", key, "err", err)
		return nil, false
	}
	if !ok || len(batch) != key.Amount {
		return nil, false
	}
	return batch, true
}

func (p *BatchProvider) fetch(ctx context.Context, params domain.QuizParams) (domain.QuestionBatch, error) {
	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	batch, err := p.source.FetchBatch(ctx, params, token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExhausted) {
			p.recoverToken(ctx, token, err)
		}
		return nil, err
	}

	if err := p.cache.SetBatch(ctx, params.Key(), batch); err != nil {
		p.logger.Warnw("failed to cache batch", "key", params.Key(), "err", err)
	}
	return batch, nil
}

// shared runs fn once per key for all concurrent callers. The flight is detached
// from every caller's cancellation and bounded by the flight timeout; a caller
// whose ctx ends stops waiting without failing the others.
func (p *BatchProvider) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := p.sf.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.flightTimeout)
		defer cancel()
		return fn(flightCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (p *BatchProvider) token(ctx context.Context) (string, error) {
	token, ok, err := p.cache.GetToken(ctx)
	if err != nil {
		p.logger.Warnw("token cache read failed", "err", err)
	}
	if ok && token != "" {
		return token, nil
	}

	result, err := p.shared(ctx, "token", func(ctx context.Context) (interface{}, error) {
		token, err := p.source.AcquireToken(ctx)
		if err != nil {
			return "", err
		}
		if err := p.cache.SetToken(ctx, token); err != nil {
			p.logger.Warnw("failed to cache token", "err", err)
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// recoverToken prepares a usable token for the next attempt. An empty token is reset
// on the provider; an unknown one is dropped so the next load requests a new one.
func (p *BatchProvider) recoverToken(ctx context.Context, token string, cause error) {
	var fetchErr *domain.FetchError
	if errors.As(cause, &fetchErr) && fetchErr.TokenEmpty() {
		next, err := p.source.ResetToken(ctx, token)
		if err == nil {
			if err := p.cache.SetToken(ctx, next); err != nil {
				p.logger.Warnw("failed to cache reset token", "err", err)
			}
			p.logger.Infow("session token reset after exhaustion")
			return
		}
		p.logger.Warnw("token reset failed, dropping token", "err", err)
	}
	if err := p.cache.DeleteToken(ctx); err != nil {
		p.logger.Warnw("failed to drop token", "err", err)
	}
}

// Categories lists the provider categories, falling back to the built-in list.
func (p *BatchProvider) Categories(ctx context.Context) ([]domain.Category, error) {
	categories, err := p.source.Categories(ctx)
	if err != nil || len(categories) == 0 {
		p.logger.Warnw("using built-in categories", "err", err)
		return domain.KnownCategories(), nil
	}
	return categories, nil
}

func batchFlightKey(key domain.BatchKey) string {
	return fmt.Sprintf("batch:%d:%s:%d", key.CategoryID, key.Difficulty, key.Amount)
}
