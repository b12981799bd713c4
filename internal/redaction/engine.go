// Package redaction performs regex-based secret detection so source
// text never carries live credentials to an LLM provider.
package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Engine performs regex-based secret detection and redaction.
type Engine struct {
	patterns []*regexp.Regexp
}

// NewEngine creates a new redaction engine with default secret patterns.
func NewEngine() *Engine {
	return &Engine{
		patterns: defaultPatterns(),
	}
}

// Redact scans input for secrets and replaces them with stable placeholders.
func (e *Engine) Redact(input string) string {
	result := input
	seenSecrets := make(map[string]string) // secret -> placeholder

	for _, pattern := range e.patterns {
		matches := pattern.FindAllString(result, -1)
		for _, match := range matches {
			if _, seen := seenSecrets[match]; seen {
				continue
			}
			seenSecrets[match] = placeholderFor(match)
		}
	}

	for secret, placeholder := range seenSecrets {
		result = strings.ReplaceAll(result, secret, placeholder)
	}

	return result
}

// IsRedacted checks if the content contains redaction placeholders.
func (e *Engine) IsRedacted(content string) bool {
	return strings.Contains(content, "<REDACTED:")
}

// placeholderFor creates a stable, unique placeholder for a secret.
// Identical secrets always map to the same placeholder so line-level
// findings stay consistent across reviews.
func placeholderFor(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("<REDACTED:%s>", hex.EncodeToString(hash[:])[:8])
}

// defaultPatterns returns the default set of regex patterns for secret detection.
func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// OpenAI API keys
		`sk-[a-zA-Z0-9]{20,}`,
		// Anthropic API keys
		`sk-ant-[a-zA-Z0-9\-]{20,}`,
		// AWS Access Key ID
		`AKIA[0-9A-Z]{16}`,
		// AWS Secret Access Key (generalized high-entropy pattern)
		`aws.{0,20}?['\"][0-9a-zA-Z/+]{40}['\"]`,
		// GitHub tokens
		`gh[posr]_[a-zA-Z0-9]{20,}`,
		// Google API keys
		`AIza[0-9A-Za-z\-_]{35}`,
		// JWT tokens
		`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`,
		// Private keys (PEM format)
		`-----BEGIN\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----[\s\S]*?-----END\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----`,
		// Slack tokens
		`xox[baprs]-[a-zA-Z0-9\-]{10,}`,
		// Generic bearer tokens
		`Bearer\s+[a-zA-Z0-9_\-\.]+`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}
	return compiled
}
