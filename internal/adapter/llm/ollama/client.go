package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/config"
	"github.com/bkyoung/review-engine/internal/domain"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 120 * time.Second // Local models can be slower

	providerName = "ollama"
)

// HTTPClient is an HTTP client for a self-hosted Ollama backend. It
// differs from the hosted clients only in base URL and the absence of a
// credential.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client

	logger  llmhttp.Logger
	metrics llmhttp.Metrics
}

// NewHTTPClient creates a new Ollama HTTP client.
func NewHTTPClient(providerCfg config.ProviderConfig, httpCfg config.HTTPConfig) *HTTPClient {
	timeout := llmhttp.ParseTimeout(providerCfg.Timeout, httpCfg.Timeout, defaultTimeout)

	baseURL := providerCfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &HTTPClient{
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
	return domain.FamilyOllama
}

// Invoke makes a single request to the Ollama Generate API.
func (c *HTTPClient) Invoke(ctx context.Context, prompt, modelID string, opts llm.InvokeOptions) (*llm.InvokeResult, error) {
	startTime := time.Now()

	if c.logger != nil {
		c.logger.LogRequest(ctx, llmhttp.RequestLog{
			Provider:    providerName,
			Model:       modelID,
			Timestamp:   startTime,
			PromptChars: len(prompt),
		})
	}
	if c.metrics != nil {
		c.metrics.RecordRequest(providerName, modelID)
	}

	reqBody := GenerateRequest{
		Model:  modelID,
		Prompt: prompt,
		System: opts.System,
		Stream: false,
	}
	options := make(map[string]interface{})
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxOutputTokens > 0 {
		options["num_predict"] = opts.MaxOutputTokens
	}
	if len(options) > 0 {
		reqBody.Options = options
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// A refused connection usually means the local server is not
		// running; treat as unavailable so callers get a clear message.
		return nil, c.fail(ctx, modelID, startTime,
			llmhttp.NewServiceUnavailableError(providerName, err.Error()))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.fail(ctx, modelID, startTime, c.classifyError(resp.StatusCode, bodyBytes))
	}

	var generateResp GenerateResponse
	if err := json.Unmarshal(bodyBytes, &generateResp); err != nil {
		return nil, c.fail(ctx, modelID, startTime,
			llmhttp.NewMalformedError(providerName, fmt.Sprintf("failed to parse response: %v", err)))
	}

	result := &llm.InvokeResult{
		RawText:   generateResp.Response,
		TokensIn:  generateResp.PromptEvalCount,
		TokensOut: generateResp.EvalCount,
		Model:     generateResp.Model,
	}

	if c.logger != nil {
		c.logger.LogResponse(ctx, llmhttp.ResponseLog{
			Provider:   providerName,
			Model:      modelID,
			Timestamp:  time.Now(),
			Duration:   time.Since(startTime),
			TokensIn:   result.TokensIn,
			TokensOut:  result.TokensOut,
			StatusCode: resp.StatusCode,
		})
	}
	if c.metrics != nil {
		c.metrics.RecordTokens(providerName, modelID, result.TokensIn, result.TokensOut)
		c.metrics.RecordDuration(providerName, modelID, time.Since(startTime))
	}

	return result, nil
}

// classifyError maps Ollama error responses to typed errors.
func (c *HTTPClient) classifyError(statusCode int, body []byte) *llmhttp.Error {
	var errResp ErrorResponse
	message := fmt.Sprintf("HTTP %d", statusCode)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		message = errResp.Error
	}

	switch statusCode {
	case http.StatusNotFound, http.StatusBadRequest:
		return llmhttp.NewInvalidRequestError(providerName, message)
	case http.StatusTooManyRequests:
		return llmhttp.NewRateLimitError(providerName, message, nil)
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		return llmhttp.NewServiceUnavailableError(providerName, message)
	default:
		return &llmhttp.Error{
			Type:       llmhttp.ErrTypeUnknown,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  false,
			Provider:   providerName,
		}
	}
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
