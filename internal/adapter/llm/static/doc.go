// Package static provides a mock LLM client that returns a canned,
// schema-conformant review. This is useful for dry runs and for testing
// the pipeline without making live API calls.
package static
