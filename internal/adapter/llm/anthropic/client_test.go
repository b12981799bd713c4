package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	"github.com/bkyoung/review-engine/internal/adapter/llm/anthropic"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/config"
)

func testHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{Timeout: "60s"}
}

func TestInvoke_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		var req anthropic.MessagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-5-haiku-20241022", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "test prompt", req.Messages[0].Content)

		json.NewEncoder(w).Encode(anthropic.MessagesResponse{
			Content:    []anthropic.ContentBlock{{Type: "text", Text: "review text"}},
			Model:      "claude-3-5-haiku-20241022",
			StopReason: "end_turn",
			Usage:      anthropic.Usage{InputTokens: 50, OutputTokens: 150},
		})
	}))
	defer server.Close()

	client := anthropic.NewHTTPClient("test-key", config.ProviderConfig{Enabled: true}, testHTTPConfig())
	client.SetBaseURL(server.URL)

	result, err := client.Invoke(context.Background(), "test prompt", "claude-3-5-haiku-20241022", llm.InvokeOptions{MaxOutputTokens: 1024})

	require.NoError(t, err)
	assert.Equal(t, "review text", result.RawText)
	assert.Equal(t, 50, result.TokensIn)
	assert.Equal(t, 150, result.TokensOut)
}

func TestInvoke_RateLimitHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("retry-after", "30")
		w.Header().Set("anthropic-ratelimit-requests-remaining", "0")
		w.Header().Set("anthropic-ratelimit-requests-limit", "50")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "Number of requests has exceeded your rate limit."}}`))
	}))
	defer server.Close()

	client := anthropic.NewHTTPClient("key", config.ProviderConfig{Enabled: true}, testHTTPConfig())
	client.SetBaseURL(server.URL)

	_, err := client.Invoke(context.Background(), "prompt", "claude-3-5-haiku-20241022", llm.InvokeOptions{})

	var httpErr *llmhttp.Error
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, llmhttp.ErrTypeRateLimit, httpErr.Type)
	assert.True(t, httpErr.Retryable)
	require.NotNil(t, httpErr.RateLimit)
	assert.Equal(t, 30*time.Second, httpErr.RateLimit.RetryAfter)
	assert.Equal(t, 0, httpErr.RateLimit.Remaining)
	assert.Equal(t, 50, httpErr.RateLimit.Limit)
}

func TestInvoke_OverloadedIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		w.Write([]byte(`{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`))
	}))
	defer server.Close()

	client := anthropic.NewHTTPClient("key", config.ProviderConfig{Enabled: true}, testHTTPConfig())
	client.SetBaseURL(server.URL)

	_, err := client.Invoke(context.Background(), "prompt", "claude-3-5-haiku-20241022", llm.InvokeOptions{})

	var httpErr *llmhttp.Error
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, llmhttp.ErrTypeServiceUnavailable, httpErr.Type)
	assert.True(t, httpErr.Retryable)
	assert.Equal(t, 529, httpErr.StatusCode)
	assert.Contains(t, httpErr.Error(), "529")
}

func TestInvoke_AuthenticationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))
	defer server.Close()

	client := anthropic.NewHTTPClient("bad-key", config.ProviderConfig{Enabled: true}, testHTTPConfig())
	client.SetBaseURL(server.URL)

	_, err := client.Invoke(context.Background(), "prompt", "claude-3-5-haiku-20241022", llm.InvokeOptions{})

	var httpErr *llmhttp.Error
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, llmhttp.ErrTypeAuthentication, httpErr.Type)
	assert.False(t, httpErr.Retryable)
}
