package http

import (
	"fmt"
	"regexp"
)

const (
	// MaxLoggedResponseLength is the maximum length of response text to
	// include in logs. Longer responses are truncated so raw source code
	// and provider output never land in log aggregators wholesale.
	MaxLoggedResponseLength = 200
)

// TruncateForLogging safely truncates a response string for logging
// purposes while keeping enough context for debugging.
func TruncateForLogging(response string) string {
	if len(response) <= MaxLoggedResponseLength {
		return response
	}
	return response[:MaxLoggedResponseLength] + fmt.Sprintf("... [truncated, total length=%d bytes]", len(response))
}

var urlSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(key=)[^&"\s]+`),
	regexp.MustCompile(`(apiKey=)[^&"\s]+`),
	regexp.MustCompile(`(api_key=)[^&"\s]+`),
	regexp.MustCompile(`(token=)[^&"\s]+`),
	regexp.MustCompile(`(access_token=)[^&"\s]+`),
}

// RedactURLSecrets redacts API keys and other secrets from URLs in error
// messages. Gemini passes its key as a ?key= query parameter, so any
// error message containing the request URL would otherwise leak it.
func RedactURLSecrets(text string) string {
	if text == "" {
		return text
	}
	for _, pattern := range urlSecretPatterns {
		text = pattern.ReplaceAllString(text, "${1}[REDACTED]")
	}
	return text
}
