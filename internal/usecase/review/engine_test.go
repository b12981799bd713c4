package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/domain"
)

// scriptedClient returns one queued response per Invoke call.
type scriptedClient struct {
	family  string
	results []*llm.InvokeResult
	errs    []error
	calls   int
	prompts []string
}

func (c *scriptedClient) Invoke(ctx context.Context, prompt, modelID string, opts llm.InvokeOptions) (*llm.InvokeResult, error) {
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if i >= len(c.errs) {
		i = len(c.errs) - 1
	}
	return c.results[i], c.errs[i]
}

func (c *scriptedClient) Family() string {
	if c.family == "" {
		return domain.FamilyStatic
	}
	return c.family
}

// newTestEngine returns an engine whose sleeps are captured, not slept.
func newTestEngine(cfg EngineConfig) (*Engine, *[]time.Duration) {
	engine := NewEngine(cfg, nil, nil)
	var delays []time.Duration
	engine.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return engine, &delays
}

func successResult() *llm.InvokeResult {
	return &llm.InvokeResult{RawText: "ok", TokensIn: 10, TokensOut: 20}
}

func TestEngineInvoke_SucceedsFirstAttempt(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{successResult()},
		errs:    []error{nil},
	}
	engine, delays := newTestEngine(EngineConfig{MaxAttempts: 3, BaseDelay: time.Second})

	result, err := engine.Invoke(context.Background(), client, "prompt", "static-review", llm.InvokeOptions{})

	require.NoError(t, err)
	assert.Equal(t, "ok", result.RawText)
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, *delays)
}

func TestEngineInvoke_RetriesThenSucceeds(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{nil, nil, successResult()},
		errs: []error{
			llmhttp.NewServiceUnavailableError("static", "overloaded"),
			llmhttp.NewServiceUnavailableError("static", "overloaded"),
			nil,
		},
	}
	engine, delays := newTestEngine(EngineConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second})

	result, err := engine.Invoke(context.Background(), client, "prompt", "static-review", llm.InvokeOptions{})

	require.NoError(t, err)
	assert.Equal(t, "ok", result.RawText)
	assert.Equal(t, 3, client.calls)
	// No hint: exponential curve doubles from the base delay.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)
}

func TestEngineInvoke_ExhaustsAttempts(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{nil},
		errs:    []error{llmhttp.NewServiceUnavailableError("static", "overloaded")},
	}
	engine, delays := newTestEngine(EngineConfig{MaxAttempts: 3, BaseDelay: time.Second})

	_, err := engine.Invoke(context.Background(), client, "prompt", "static-review", llm.InvokeOptions{})

	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
	assert.Len(t, *delays, 2)

	var httpErr *llmhttp.Error
	assert.True(t, errors.As(err, &httpErr))
}

func TestEngineInvoke_FatalErrorFailsFast(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{nil},
		errs:    []error{llmhttp.NewAuthenticationError("static", "bad key")},
	}
	engine, delays := newTestEngine(EngineConfig{MaxAttempts: 5, BaseDelay: time.Second})

	_, err := engine.Invoke(context.Background(), client, "prompt", "static-review", llm.InvokeOptions{})

	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, *delays)
}

func TestEngineInvoke_HonorsResetHint(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{nil, successResult()},
		errs: []error{
			llmhttp.NewRateLimitError("static", "slow down", &llmhttp.RateLimitInfo{RetryAfter: 37 * time.Second}),
			nil,
		},
	}
	engine, delays := newTestEngine(EngineConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second})

	_, err := engine.Invoke(context.Background(), client, "prompt", "static-review", llm.InvokeOptions{})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{37 * time.Second}, *delays)
}

func TestEngineInvoke_ClampsResetHint(t *testing.T) {
	cases := []struct {
		name string
		hint time.Duration
		want time.Duration
	}{
		{name: "below floor", hint: 200 * time.Millisecond, want: time.Second},
		{name: "above ceiling", hint: 4 * time.Hour, want: 60 * time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &scriptedClient{
				results: []*llm.InvokeResult{nil, successResult()},
				errs: []error{
					llmhttp.NewRateLimitError("static", "slow down", &llmhttp.RateLimitInfo{RetryAfter: tc.hint}),
					nil,
				},
			}
			engine, delays := newTestEngine(EngineConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second})

			_, err := engine.Invoke(context.Background(), client, "prompt", "static-review", llm.InvokeOptions{})

			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tc.want}, *delays)
		})
	}
}

func TestEngineInvoke_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{
		results: []*llm.InvokeResult{successResult()},
		errs:    []error{nil},
	}
	engine, _ := newTestEngine(EngineConfig{MaxAttempts: 3, BaseDelay: time.Second})

	_, err := engine.Invoke(ctx, client, "prompt", "static-review", llm.InvokeOptions{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, client.calls)
}
