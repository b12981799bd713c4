// Package scm fetches pull-request metadata and changed files from
// GitHub. It is read-only: posting reviews back to the host is out of
// scope for this engine.
package scm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/domain"
)

const (
	providerName   = "github"
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second

	// GitHub paginates the changed-files listing; 100 is the API maximum
	// per page and comfortably exceeds the review cap.
	filesPerPage = 100
)

// Client is a read-only HTTP client for the GitHub pull-requests API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retryConf  llmhttp.RetryConfig
}

// NewClient creates a GitHub client. The token is a personal access token
// or GITHUB_TOKEN from Actions; empty works for public repositories at
// reduced rate limits.
func NewClient(token string) *Client {
	return &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retryConf:  llmhttp.DefaultRetryConfig(),
	}
}

// SetBaseURL sets a custom base URL (for testing).
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// SetTimeout sets the HTTP timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// FetchPullRequest retrieves pull-request metadata. repo is "owner/name".
func (c *Client) FetchPullRequest(ctx context.Context, repo string, number int) (domain.PullRequest, error) {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d", c.baseURL, repo, number)

	var payload pullResponse
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return domain.PullRequest{}, err
	}

	return domain.PullRequest{
		Repo:       repo,
		Number:     number,
		Title:      payload.Title,
		Body:       payload.Body,
		HeadCommit: payload.Head.SHA,
		BaseCommit: payload.Base.SHA,
	}, nil
}

// FetchChangedFiles lists the files changed by a pull request, following
// pagination until the listing is exhausted.
func (c *Client) FetchChangedFiles(ctx context.Context, repo string, number int) ([]domain.ChangedFile, error) {
	var files []domain.ChangedFile

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/pulls/%d/files?per_page=%d&page=%d",
			c.baseURL, repo, number, filesPerPage, page)

		var payload []fileResponse
		if err := c.getJSON(ctx, url, &payload); err != nil {
			return nil, err
		}

		for _, f := range payload {
			files = append(files, domain.ChangedFile{
				Filename: f.Filename,
				Status:   f.Status,
				Patch:    f.Patch,
			})
		}

		if len(payload) < filesPerPage {
			return files, nil
		}
	}
}

// getJSON performs a GET with retry and decodes the response body.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	return llmhttp.RetryWithBackoff(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &llmhttp.Error{
				Type:     llmhttp.ErrTypeUnknown,
				Message:  err.Error(),
				Provider: providerName,
			}
		}

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return llmhttp.NewTimeoutError(providerName, err.Error())
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return llmhttp.NewTimeoutError(providerName, err.Error())
		}

		if resp.StatusCode != http.StatusOK {
			return classifyStatus(resp, body)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return llmhttp.NewMalformedError(providerName, err.Error())
		}
		return nil
	}, c.retryConf)
}

// classifyStatus maps a GitHub error response into the shared taxonomy.
// Secondary rate limits arrive as 403 with a rate-limit message, so the
// message is inspected as well as the status.
func classifyStatus(resp *http.Response, body []byte) *llmhttp.Error {
	message := apiErrorMessage(body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return llmhttp.NewAuthenticationError(providerName, message)
	case http.StatusForbidden:
		if llmhttp.IsQuotaMessage(message) || resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return llmhttp.NewRateLimitError(providerName, message, rateLimitInfo(resp))
		}
		return llmhttp.NewAuthenticationError(providerName, message)
	case http.StatusTooManyRequests:
		return llmhttp.NewRateLimitError(providerName, message, rateLimitInfo(resp))
	case http.StatusNotFound:
		return llmhttp.NewInvalidRequestError(providerName, message)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return llmhttp.NewServiceUnavailableError(providerName, message)
	default:
		return &llmhttp.Error{
			Type:       llmhttp.ErrTypeUnknown,
			Message:    message,
			StatusCode: resp.StatusCode,
			Provider:   providerName,
		}
	}
}

// rateLimitInfo extracts GitHub's reset headers into backoff hints.
func rateLimitInfo(resp *http.Response) *llmhttp.RateLimitInfo {
	info := &llmhttp.RateLimitInfo{}

	if retryAfter := llmhttp.ParseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
		info.RetryAfter = retryAfter
	} else if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		var epoch int64
		if _, err := fmt.Sscanf(reset, "%d", &epoch); err == nil {
			if until := time.Until(time.Unix(epoch, 0)); until > 0 {
				info.RetryAfter = until
			}
		}
	}

	fmt.Sscanf(resp.Header.Get("X-RateLimit-Remaining"), "%d", &info.Remaining)
	fmt.Sscanf(resp.Header.Get("X-RateLimit-Limit"), "%d", &info.Limit)
	return info
}

// apiErrorMessage pulls the message field out of a GitHub error body,
// falling back to the raw body when it is not JSON.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

// pullResponse is the subset of the GitHub pull-request payload we read.
type pullResponse struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  struct {
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		SHA string `json:"sha"`
	} `json:"base"`
}

// fileResponse is one entry of the changed-files listing.
type fileResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Patch    string `json:"patch"`
}
