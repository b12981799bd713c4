package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/config"
	"github.com/bkyoung/review-engine/internal/domain"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultTimeout = 60 * time.Second

	providerName = "gemini"
)

// HTTPClient is an HTTP client for the Google Gemini generateContent
// API. One attempt per Invoke; the invocation engine owns retries.
type HTTPClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client

	logger  llmhttp.Logger
	metrics llmhttp.Metrics
}

// NewHTTPClient creates a new Gemini HTTP client.
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
	return domain.FamilyGemini
}

// Invoke makes a single request to the Gemini generateContent API.
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

	reqBody := GenerateContentRequest{
		Contents: []Content{
			{Parts: []Part{{Text: prompt}}, Role: "user"},
		},
		GenerationConfig: &GenerationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxOutputTokens,
			CandidateCount:  1,
		},
	}
	if opts.System != "" {
		reqBody.SystemInstruction = &Content{Parts: []Part{{Text: opts.System}}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Gemini authenticates via a key query parameter rather than a header.
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, modelID, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Strip the key from any transport error before it can be logged.
		message := llmhttp.RedactURLSecrets(err.Error())
		return nil, c.fail(ctx, modelID, startTime, llmhttp.NewTimeoutError(providerName, message))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.fail(ctx, modelID, startTime, c.classifyError(resp, bodyBytes))
	}

	var contentResp GenerateContentResponse
	if err := json.Unmarshal(bodyBytes, &contentResp); err != nil {
		return nil, c.fail(ctx, modelID, startTime,
			llmhttp.NewMalformedError(providerName, fmt.Sprintf("failed to parse response: %v", err)))
	}

	if len(contentResp.Candidates) == 0 {
		return nil, c.fail(ctx, modelID, startTime,
			llmhttp.NewMalformedError(providerName, "no candidates in response"))
	}

	candidate := contentResp.Candidates[0]
	var textParts []string
	for _, part := range candidate.Content.Parts {
		textParts = append(textParts, part.Text)
	}

	result := &llm.InvokeResult{
		RawText:      strings.Join(textParts, ""),
		TokensIn:     contentResp.UsageMetadata.PromptTokenCount,
		TokensOut:    contentResp.UsageMetadata.CandidatesTokenCount,
		Model:        modelID,
		FinishReason: candidate.FinishReason,
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

// classifyError maps Gemini error responses to typed errors. Free-tier
// quota errors arrive as 429/RESOURCE_EXHAUSTED with a RetryInfo detail
// carrying the exact reset delay; that hint is surfaced so the engine
// can honor it instead of guessing.
func (c *HTTPClient) classifyError(resp *http.Response, body []byte) *llmhttp.Error {
	var errResp ErrorResponse
	message := fmt.Sprintf("HTTP %d", resp.StatusCode)
	status := ""
	var details []ErrorDetailItem
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = llmhttp.RedactURLSecrets(errResp.Error.Message)
		status = errResp.Error.Status
		details = errResp.Error.Details
	}

	rateLimited := resp.StatusCode == http.StatusTooManyRequests ||
		status == "RESOURCE_EXHAUSTED" ||
		llmhttp.IsQuotaMessage(message)
	if rateLimited {
		return llmhttp.NewRateLimitError(providerName, message, rateLimitInfo(resp.Header, details))
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmhttp.NewAuthenticationError(providerName, message)
	case http.StatusBadRequest:
		// Gemini reports an invalid key as 400/INVALID_ARGUMENT.
		if strings.Contains(strings.ToLower(message), "api key") {
			return llmhttp.NewAuthenticationError(providerName, message)
		}
		return llmhttp.NewInvalidRequestError(providerName, message)
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		return llmhttp.NewServiceUnavailableError(providerName, message)
	default:
		return &llmhttp.Error{
			Type:       llmhttp.ErrTypeUnknown,
			Message:    message,
			StatusCode: resp.StatusCode,
			Retryable:  false,
			Provider:   providerName,
		}
	}
}

// rateLimitInfo extracts the reset hint, preferring the RetryInfo error
// detail over the Retry-After header.
func rateLimitInfo(header http.Header, details []ErrorDetailItem) *llmhttp.RateLimitInfo {
	info := &llmhttp.RateLimitInfo{
		RetryAfter: llmhttp.ParseRetryAfter(header.Get("Retry-After")),
	}
	for _, detail := range details {
		if !strings.HasSuffix(detail.Type, "RetryInfo") || detail.RetryDelay == "" {
			continue
		}
		if d, err := time.ParseDuration(detail.RetryDelay); err == nil && d > 0 {
			info.RetryAfter = d
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
