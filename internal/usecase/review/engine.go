package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
)

// Reset-hint clamp bounds. A provider hint shorter than the floor is not
// worth honoring over the backoff curve; one longer than the ceiling is
// treated as a daily-quota signal and capped so a review never stalls for
// hours inside a single call.
const (
	minHintDelay = 1 * time.Second
	maxHintDelay = 60 * time.Second
)

// EngineConfig bounds the retry loop around provider invocations.
type EngineConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultEngineConfig returns the default retry bounds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
	}
}

// Engine drives provider invocations with retry. Provider clients make
// exactly one attempt per Invoke; all retry policy lives here so backoff
// is applied once, never stacked per layer.
type Engine struct {
	config  EngineConfig
	logger  llmhttp.Logger
	metrics llmhttp.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an invocation engine with the given bounds.
func NewEngine(config EngineConfig, logger llmhttp.Logger, metrics llmhttp.Metrics) *Engine {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 2 * time.Second
	}
	if logger == nil {
		logger = llmhttp.NopLogger{}
	}
	if metrics == nil {
		metrics = llmhttp.NopMetrics{}
	}
	return &Engine{
		config:  config,
		logger:  logger,
		metrics: metrics,
		sleep:   sleepContext,
	}
}

// Invoke calls the client until it succeeds, fails fatally, or the
// attempt budget is spent. Backoff between attempts prefers the
// provider's reset hint (clamped to [1s,60s]); without a hint it falls
// back to baseDelay doubling per attempt.
func (e *Engine) Invoke(ctx context.Context, client llm.Client, prompt, modelID string, opts llm.InvokeOptions) (*llm.InvokeResult, error) {
	var lastErr error

	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		result, err := client.Invoke(ctx, prompt, modelID, opts)
		e.metrics.RecordDuration(client.Family(), modelID, time.Since(start))
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !llmhttp.ShouldRetry(err) {
			return nil, err
		}
		if attempt == e.config.MaxAttempts-1 {
			break
		}

		delay := e.delayFor(err, attempt)
		e.logger.LogWarning(ctx, "provider attempt failed, retrying", map[string]interface{}{
			"attempt":     attempt + 1,
			"maxAttempts": e.config.MaxAttempts,
			"model":       modelID,
			"delay":       delay.String(),
			"error":       err.Error(),
		})

		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted %d attempts against %s: %w", e.config.MaxAttempts, modelID, lastErr)
}

// delayFor picks the wait before the next attempt. Hint first, curve
// second.
func (e *Engine) delayFor(err error, attempt int) time.Duration {
	var httpErr *llmhttp.Error
	if errors.As(err, &httpErr) {
		if hint := httpErr.RetryAfterHint(); hint > 0 {
			return clampHint(hint)
		}
	}
	return e.config.BaseDelay << uint(attempt)
}

func clampHint(hint time.Duration) time.Duration {
	if hint < minHintDelay {
		return minHintDelay
	}
	if hint > maxHintDelay {
		return maxHintDelay
	}
	return hint
}

// sleepContext waits for d or until the context is cancelled, whichever
// comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
