package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/config"
	"github.com/bkyoung/review-engine/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultTimeout = 60 * time.Second

	providerName = "openai"
)

// HTTPClient is an HTTP client for the OpenAI Chat Completions API. One
// attempt per Invoke; the invocation engine owns retries.
type HTTPClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client

	logger  llmhttp.Logger
	metrics llmhttp.Metrics
}

// NewHTTPClient creates a new OpenAI HTTP client.
func NewHTTPClient(apiKey string, providerCfg config.ProviderConfig, httpCfg config.HTTPConfig) *HTTPClient {
	timeout := llmhttp.ParseTimeout(providerCfg.Timeout, httpCfg.Timeout, defaultTimeout)

	baseURL := providerCfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &HTTPClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// SetBaseURL sets a custom base URL (for testing).
func (c *HTTPClient) SetBaseURL(url string) {
	c.baseURL = url
}

// SetTimeout sets the HTTP timeout.
func (c *HTTPClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
	c.client.Timeout = timeout
}

// SetLogger sets the logger for this client.
func (c *HTTPClient) SetLogger(logger llmhttp.Logger) {
	c.logger = logger
}

// SetMetrics sets the metrics tracker for this client.
func (c *HTTPClient) SetMetrics(metrics llmhttp.Metrics) {
	c.metrics = metrics
}

// Family returns the provider family name.
func (c *HTTPClient) Family() string {
	return domain.FamilyOpenAI
}

// Invoke makes a single request to the Chat Completions API.
func (c *HTTPClient) Invoke(ctx context.Context, prompt, modelID string, opts llm.InvokeOptions) (*llm.InvokeResult, error) {
	startTime := time.Now()

	if c.logger != nil {
		c.logger.LogRequest(ctx, llmhttp.RequestLog{
			Provider:    providerName,
			Model:       modelID,
			Timestamp:   startTime,
			PromptChars: len(prompt),
			APIKey:      c.apiKey,
		})
	}
	if c.metrics != nil {
		c.metrics.RecordRequest(providerName, modelID)
	}

	messages := []Message{}
	if opts.System != "" {
		messages = append(messages, Message{Role: "system", Content: opts.System})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	reqBody := ChatCompletionRequest{
		Model:     modelID,
		Messages:  messages,
		MaxTokens: opts.MaxOutputTokens,
		// The prompt demands a single JSON object; json_object mode makes
		// the model enforce it server-side.
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}
	if opts.Temperature > 0 {
		reqBody.Temperature = opts.Temperature
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.fail(ctx, modelID, startTime, llmhttp.NewTimeoutError(providerName, err.Error()))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.fail(ctx, modelID, startTime, c.classifyError(resp, bodyBytes))
	}

	var completionResp ChatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &completionResp); err != nil {
		return nil, c.fail(ctx, modelID, startTime,
			llmhttp.NewMalformedError(providerName, fmt.Sprintf("failed to parse response: %v", err)))
	}

	if len(completionResp.Choices) == 0 {
		return nil, c.fail(ctx, modelID, startTime,
			llmhttp.NewMalformedError(providerName, "no choices in response"))
	}

	choice := completionResp.Choices[0]
	result := &llm.InvokeResult{
		RawText:      choice.Message.Content,
		TokensIn:     completionResp.Usage.PromptTokens,
		TokensOut:    completionResp.Usage.CompletionTokens,
		Model:        completionResp.Model,
		FinishReason: choice.FinishReason,
	}

	if c.logger != nil {
		c.logger.LogResponse(ctx, llmhttp.ResponseLog{
			Provider:     providerName,
			Model:        modelID,
			Timestamp:    time.Now(),
			Duration:     time.Since(startTime),
			TokensIn:     result.TokensIn,
			TokensOut:    result.TokensOut,
			StatusCode:   resp.StatusCode,
			FinishReason: result.FinishReason,
		})
	}
	if c.metrics != nil {
		c.metrics.RecordTokens(providerName, modelID, result.TokensIn, result.TokensOut)
		c.metrics.RecordDuration(providerName, modelID, time.Since(startTime))
	}

	return result, nil
}

// classifyError maps HTTP status codes to typed errors at the provider
// boundary.
func (c *HTTPClient) classifyError(resp *http.Response, body []byte) *llmhttp.Error {
	var errResp ErrorResponse
	message := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmhttp.NewAuthenticationError(providerName, message)
	case http.StatusTooManyRequests:
		// insufficient_quota also arrives as 429; both are rate limits to
		// the caller, the message distinguishes them.
		return llmhttp.NewRateLimitError(providerName, message, rateLimitInfo(resp.Header))
	case http.StatusNotFound, http.StatusBadRequest:
		return llmhttp.NewInvalidRequestError(providerName, message)
	case http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway:
		return llmhttp.NewServiceUnavailableError(providerName, message)
	default:
		if llmhttp.IsQuotaMessage(message) {
			return llmhttp.NewRateLimitError(providerName, message, rateLimitInfo(resp.Header))
		}
		return &llmhttp.Error{
			Type:       llmhttp.ErrTypeUnknown,
			Message:    message,
			StatusCode: resp.StatusCode,
			Retryable:  false,
			Provider:   providerName,
		}
	}
}

// rateLimitInfo extracts OpenAI's rate-limit headers. The reset headers
// use duration syntax ("1s", "6m0s") rather than delta-seconds.
func rateLimitInfo(header http.Header) *llmhttp.RateLimitInfo {
	info := &llmhttp.RateLimitInfo{
		RetryAfter: llmhttp.ParseRetryAfter(header.Get("Retry-After")),
	}
	if info.RetryAfter == 0 {
		if v := header.Get("x-ratelimit-reset-requests"); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				info.RetryAfter = d
			}
		}
	}
	if v := header.Get("x-ratelimit-remaining-requests"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = n
		}
	}
	if v := header.Get("x-ratelimit-limit-requests"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Limit = n
		}
	}
	return info
}

func (c *HTTPClient) fail(ctx context.Context, modelID string, start time.Time, err *llmhttp.Error) error {
	if c.logger != nil {
		c.logger.LogError(ctx, llmhttp.ErrorLog{
			Provider:   providerName,
			Model:      modelID,
			Timestamp:  time.Now(),
			Duration:   time.Since(start),
			Error:      err,
			ErrorType:  err.Type,
			StatusCode: err.StatusCode,
			Retryable:  err.Retryable,
		})
	}
	if c.metrics != nil {
		c.metrics.RecordError(providerName, modelID, err.Type)
	}
	return err
}
