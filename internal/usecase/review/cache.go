package review

import (
	"context"
	"sync"

	"github.com/bkyoung/review-engine/internal/domain"
)

// OutcomeCache stores file-review outcomes keyed by content fingerprint.
// A miss is (nil, false, nil); errors are reserved for storage failures.
type OutcomeCache interface {
	GetOutcome(ctx context.Context, fingerprint string) (*domain.ReviewOutcome, bool, error)
	PutOutcome(ctx context.Context, fingerprint string, outcome *domain.ReviewOutcome) error
}

// PRCache stores aggregated pull-request reviews keyed by
// domain.PRCacheKey. Entries for superseded head commits are left in
// place; lookups by the new key simply miss.
type PRCache interface {
	GetPRReview(ctx context.Context, key string) (*domain.PRReviewResult, bool, error)
	PutPRReview(ctx context.Context, key string, result *domain.PRReviewResult) error
}

// MemoryCache is an in-process OutcomeCache and PRCache. It backs tests
// and single-shot CLI runs where the sqlite store is not configured.
type MemoryCache struct {
	mu       sync.RWMutex
	outcomes map[string]domain.ReviewOutcome
	prs      map[string]domain.PRReviewResult
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		outcomes: make(map[string]domain.ReviewOutcome),
		prs:      make(map[string]domain.PRReviewResult),
	}
}

func (c *MemoryCache) GetOutcome(_ context.Context, fingerprint string) (*domain.ReviewOutcome, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	outcome, ok := c.outcomes[fingerprint]
	if !ok {
		return nil, false, nil
	}
	copied := outcome
	return &copied, true, nil
}

func (c *MemoryCache) PutOutcome(_ context.Context, fingerprint string, outcome *domain.ReviewOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[fingerprint] = *outcome
	return nil
}

func (c *MemoryCache) GetPRReview(_ context.Context, key string) (*domain.PRReviewResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.prs[key]
	if !ok {
		return nil, false, nil
	}
	copied := result
	return &copied, true, nil
}

func (c *MemoryCache) PutPRReview(_ context.Context, key string, result *domain.PRReviewResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prs[key] = *result
	return nil
}
