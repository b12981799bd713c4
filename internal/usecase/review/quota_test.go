package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-engine/internal/domain"
)

func TestQuotaGuard_AdmitsUpToLimitThenRejects(t *testing.T) {
	guard := NewQuotaGuard(NewMemoryQuotaStore(), 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, guard.Reserve(ctx, "alice"))
	}

	err := guard.Reserve(ctx, "alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, NewError(KindQuotaExceeded, "")))
	assert.Contains(t, err.Error(), "resets at")
}

func TestQuotaGuard_UsersAreIndependent(t *testing.T) {
	guard := NewQuotaGuard(NewMemoryQuotaStore(), 1)
	ctx := context.Background()

	require.NoError(t, guard.Reserve(ctx, "alice"))
	require.Error(t, guard.Reserve(ctx, "alice"))
	require.NoError(t, guard.Reserve(ctx, "bob"))
}

func TestQuotaGuard_DisabledWhenLimitNonPositive(t *testing.T) {
	guard := NewQuotaGuard(NewMemoryQuotaStore(), 0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, guard.Reserve(ctx, "alice"))
	}

	_, limited, err := guard.Remaining(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestQuotaGuard_Remaining(t *testing.T) {
	guard := NewQuotaGuard(NewMemoryQuotaStore(), 5)
	ctx := context.Background()

	require.NoError(t, guard.Reserve(ctx, "alice"))
	require.NoError(t, guard.Reserve(ctx, "alice"))

	remaining, limited, err := guard.Remaining(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, limited)
	assert.Equal(t, 3, remaining)
}

func TestMemoryQuotaStore_WindowExpiryResets(t *testing.T) {
	store := NewMemoryQuotaStore()
	ctx := context.Background()
	start := time.Now()

	for i := 0; i < 2; i++ {
		_, ok, err := store.IncrementIfBelow(ctx, "alice", 2, start)
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, ok, err := store.IncrementIfBelow(ctx, "alice", 2, start)
	require.NoError(t, err)
	assert.False(t, ok)

	// A call after the window rolls over starts a fresh counter.
	later := start.Add(domain.QuotaWindowDuration + time.Minute)
	window, ok, err := store.IncrementIfBelow(ctx, "alice", 2, later)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, window.CallCount)
	assert.Equal(t, later, window.WindowStart)
}

func TestQuotaWindow_Expired(t *testing.T) {
	start := time.Now()
	window := domain.QuotaWindow{UserID: "alice", WindowStart: start}

	assert.False(t, window.Expired(start.Add(23*time.Hour)))
	assert.True(t, window.Expired(start.Add(24*time.Hour)))
}
