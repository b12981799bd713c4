package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/config"
	"github.com/bkyoung/review-engine/internal/domain"
)

const (
	defaultBaseURL          = "https://api.anthropic.com"
	defaultTimeout          = 60 * time.Second
	defaultAnthropicVersion = "2023-06-01"

	providerName = "anthropic"
)

// HTTPClient is an HTTP client for the Anthropic Messages API. It makes
// exactly one attempt per Invoke call; retry policy belongs to the
// invocation engine above it.
type HTTPClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client

	logger  llmhttp.Logger
	metrics llmhttp.Metrics
}

// NewHTTPClient creates a new Anthropic HTTP client.
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
	return domain.FamilyAnthropic
}

// Invoke makes a single request to the Anthropic Messages API.
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

	reqBody := MessagesRequest{
		Model: modelID,
		Messages: []Message{
			{Role: "user", Content: prompt},
		},
		MaxTokens: opts.MaxOutputTokens,
	}

	if opts.System != "" {
		reqBody.System = opts.System
	} else {
		reqBody.System = "You are a code review assistant. Analyze the code and respond with a single JSON object."
	}
	if opts.Temperature > 0 {
		reqBody.Temperature = opts.Temperature
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Anthropic uses x-api-key instead of Authorization
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", defaultAnthropicVersion)

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

	var messagesResp MessagesResponse
	if err := json.Unmarshal(bodyBytes, &messagesResp); err != nil {
		return nil, c.fail(ctx, modelID, startTime,
			llmhttp.NewMalformedError(providerName, fmt.Sprintf("failed to parse response: %v", err)))
	}

	if len(messagesResp.Content) == 0 {
		return nil, c.fail(ctx, modelID, startTime,
			llmhttp.NewMalformedError(providerName, "no content in response"))
	}

	var textParts []string
	for _, block := range messagesResp.Content {
		if block.Type == "text" {
			textParts = append(textParts, block.Text)
		}
	}

	result := &llm.InvokeResult{
		RawText:      strings.Join(textParts, ""),
		TokensIn:     messagesResp.Usage.InputTokens,
		TokensOut:    messagesResp.Usage.OutputTokens,
		Model:        messagesResp.Model,
		FinishReason: messagesResp.StopReason,
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
// boundary. Rate-limit metadata is captured so the engine can honor the
// server's reset hint exactly.
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
		return llmhttp.NewRateLimitError(providerName, message, rateLimitInfo(resp.Header))
	case http.StatusBadRequest:
		return llmhttp.NewInvalidRequestError(providerName, message)
	case 529: // Anthropic-specific: overloaded
		return &llmhttp.Error{
			Type:       llmhttp.ErrTypeServiceUnavailable,
			Message:    message,
			StatusCode: resp.StatusCode,
			Retryable:  true,
			Provider:   providerName,
		}
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
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

// rateLimitInfo extracts Anthropic's rate-limit headers.
func rateLimitInfo(header http.Header) *llmhttp.RateLimitInfo {
	info := &llmhttp.RateLimitInfo{
		RetryAfter: llmhttp.ParseRetryAfter(header.Get("retry-after")),
	}
	if v := header.Get("anthropic-ratelimit-requests-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = n
		}
	}
	if v := header.Get("anthropic-ratelimit-requests-limit"); v != "" {
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
