package http

import (
	"sync"
	"time"
)

// Metrics tracks aggregate statistics for API calls.
type Metrics interface {
	// RecordRequest records an API request
	RecordRequest(provider, model string)

	// RecordDuration records request duration
	RecordDuration(provider, model string, duration time.Duration)

	// RecordTokens records token usage
	RecordTokens(provider, model string, tokensIn, tokensOut int)

	// RecordError records an error
	RecordError(provider, model string, errType ErrorType)

	// RecordCacheHit records a review served from cache with no API call
	RecordCacheHit(kind string)

	// GetStats returns current statistics
	GetStats() Stats
}

// Stats contains aggregate statistics.
type Stats struct {
	TotalRequests  int
	TotalTokensIn  int
	TotalTokensOut int
	TotalDuration  time.Duration
	ErrorCount     int
	CacheHits      map[string]int
	ByProvider     map[string]ProviderStats
}

// ProviderStats contains per-provider statistics.
type ProviderStats struct {
	Requests  int
	TokensIn  int
	TokensOut int
	Duration  time.Duration
	Errors    int
}

// DefaultMetrics provides in-memory metrics tracking.
type DefaultMetrics struct {
	mu    sync.RWMutex
	stats Stats
}

// NewDefaultMetrics creates a metrics tracker.
func NewDefaultMetrics() *DefaultMetrics {
	return &DefaultMetrics{
		stats: Stats{
			CacheHits:  make(map[string]int),
			ByProvider: make(map[string]ProviderStats),
		},
	}
}

// RecordRequest increments request counter.
func (m *DefaultMetrics) RecordRequest(provider, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TotalRequests++

	ps := m.stats.ByProvider[provider]
	ps.Requests++
	m.stats.ByProvider[provider] = ps
}

// RecordDuration records API call duration.
func (m *DefaultMetrics) RecordDuration(provider, model string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TotalDuration += duration

	ps := m.stats.ByProvider[provider]
	ps.Duration += duration
	m.stats.ByProvider[provider] = ps
}

// RecordTokens records token usage.
func (m *DefaultMetrics) RecordTokens(provider, model string, tokensIn, tokensOut int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TotalTokensIn += tokensIn
	m.stats.TotalTokensOut += tokensOut

	ps := m.stats.ByProvider[provider]
	ps.TokensIn += tokensIn
	ps.TokensOut += tokensOut
	m.stats.ByProvider[provider] = ps
}

// RecordError increments error counters.
func (m *DefaultMetrics) RecordError(provider, model string, errType ErrorType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.ErrorCount++

	ps := m.stats.ByProvider[provider]
	ps.Errors++
	m.stats.ByProvider[provider] = ps
}

// RecordCacheHit increments the cache-hit counter for a key kind
// ("file" or "pr").
func (m *DefaultMetrics) RecordCacheHit(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.CacheHits[kind]++
}

// GetStats returns a copy of current statistics.
func (m *DefaultMetrics) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statsCopy := m.stats
	statsCopy.CacheHits = make(map[string]int, len(m.stats.CacheHits))
	for k, v := range m.stats.CacheHits {
		statsCopy.CacheHits[k] = v
	}
	statsCopy.ByProvider = make(map[string]ProviderStats, len(m.stats.ByProvider))
	for k, v := range m.stats.ByProvider {
		statsCopy.ByProvider[k] = v
	}
	return statsCopy
}

// NopMetrics discards all measurements. Useful in tests.
type NopMetrics struct{}

func (NopMetrics) RecordRequest(string, string)                 {}
func (NopMetrics) RecordDuration(string, string, time.Duration) {}
func (NopMetrics) RecordTokens(string, string, int, int)        {}
func (NopMetrics) RecordError(string, string, ErrorType)        {}
func (NopMetrics) RecordCacheHit(string)                        {}
func (NopMetrics) GetStats() Stats                              { return Stats{} }
