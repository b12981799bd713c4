package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bkyoung/review-engine/internal/domain"
)

// QuotaStore persists per-user rolling windows. IncrementIfBelow must be
// atomic with respect to concurrent callers for the same user: it admits
// and counts the call in one step, or rejects it leaving the count
// untouched. An expired window is replaced with a fresh one starting at
// now before the check.
type QuotaStore interface {
	IncrementIfBelow(ctx context.Context, userID string, limit int, now time.Time) (domain.QuotaWindow, bool, error)
	Window(ctx context.Context, userID string, now time.Time) (domain.QuotaWindow, error)
}

// QuotaGuard gates expensive operations behind a per-user daily limit.
// Cache hits never pass through the guard, so a served-from-cache review
// costs nothing.
type QuotaGuard struct {
	store QuotaStore
	limit int
}

// NewQuotaGuard creates a guard over the given store. A non-positive
// limit disables the guard.
func NewQuotaGuard(store QuotaStore, limit int) *QuotaGuard {
	return &QuotaGuard{store: store, limit: limit}
}

// Reserve counts one expensive call for the user, rejecting with a
// quota_exceeded error when the window is full.
func (g *QuotaGuard) Reserve(ctx context.Context, userID string) error {
	if g == nil || g.store == nil || g.limit <= 0 {
		return nil
	}

	window, ok, err := g.store.IncrementIfBelow(ctx, userID, g.limit, time.Now())
	if err != nil {
		return fmt.Errorf("quota check for %s: %w", userID, err)
	}
	if !ok {
		resetAt := window.WindowStart.Add(domain.QuotaWindowDuration)
		return NewError(KindQuotaExceeded, fmt.Sprintf(
			"daily review limit of %d reached; window resets at %s",
			g.limit, resetAt.UTC().Format(time.RFC3339)))
	}
	return nil
}

// Remaining reports how many calls the user has left in the current
// window. Disabled guards report the limit as unbounded via ok=false.
func (g *QuotaGuard) Remaining(ctx context.Context, userID string) (int, bool, error) {
	if g == nil || g.store == nil || g.limit <= 0 {
		return 0, false, nil
	}
	window, err := g.store.Window(ctx, userID, time.Now())
	if err != nil {
		return 0, false, err
	}
	remaining := g.limit - window.CallCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}

// MemoryQuotaStore is an in-process QuotaStore for tests and runs without
// a configured database.
type MemoryQuotaStore struct {
	mu      sync.Mutex
	windows map[string]domain.QuotaWindow
}

// NewMemoryQuotaStore creates an empty in-memory quota store.
func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{windows: make(map[string]domain.QuotaWindow)}
}

func (s *MemoryQuotaStore) IncrementIfBelow(_ context.Context, userID string, limit int, now time.Time) (domain.QuotaWindow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window, ok := s.windows[userID]
	if !ok || window.Expired(now) {
		window = domain.QuotaWindow{UserID: userID, WindowStart: now}
	}
	if window.CallCount >= limit {
		s.windows[userID] = window
		return window, false, nil
	}
	window.CallCount++
	s.windows[userID] = window
	return window, true, nil
}

func (s *MemoryQuotaStore) Window(_ context.Context, userID string, now time.Time) (domain.QuotaWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window, ok := s.windows[userID]
	if !ok || window.Expired(now) {
		return domain.QuotaWindow{UserID: userID, WindowStart: now}, nil
	}
	return window, nil
}
