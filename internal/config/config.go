package config

// Config represents the full application configuration.
type Config struct {
	Providers     map[string]ProviderConfig `yaml:"providers"`
	HTTP          HTTPConfig                `yaml:"http"`
	Review        ReviewConfig              `yaml:"review"`
	Quota         QuotaConfig               `yaml:"quota"`
	Cache         CacheConfig               `yaml:"cache"`
	Store         StoreConfig               `yaml:"store"`
	Redaction     RedactionConfig           `yaml:"redaction"`
	Git           GitConfig                 `yaml:"git"`
	SCM           SCMConfig                 `yaml:"scm"`
	Observability ObservabilityConfig       `yaml:"observability"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`

	// HTTP overrides (optional, use global HTTP config if not set)
	Timeout        *string `yaml:"timeout,omitempty"`
	MaxRetries     *int    `yaml:"maxRetries,omitempty"`
	InitialBackoff *string `yaml:"initialBackoff,omitempty"`
	MaxBackoff     *string `yaml:"maxBackoff,omitempty"`
}

// HTTPConfig holds global HTTP client settings.
type HTTPConfig struct {
	Timeout           string  `yaml:"timeout"`
	MaxRetries        int     `yaml:"maxRetries"`
	InitialBackoff    string  `yaml:"initialBackoff"`
	MaxBackoff        string  `yaml:"maxBackoff"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier"`
}

// ReviewConfig configures the review pipeline.
type ReviewConfig struct {
	// DefaultModel is used when a request names no model or names one
	// outside the allowlist.
	DefaultModel string `yaml:"defaultModel"`

	// AllowedModels restricts which model ids requests may choose.
	// Empty means the built-in catalog is the allowlist.
	AllowedModels []string `yaml:"allowedModels"`

	// MaxAttempts bounds the retry loop around one provider call.
	MaxAttempts int `yaml:"maxAttempts"`

	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay string `yaml:"baseDelay"`

	// MaxFilesPerPR caps how many changed files a PR review processes.
	MaxFilesPerPR int `yaml:"maxFilesPerPR"`

	// MinPatchLines is the changed-line threshold below which a file is
	// skipped as a near-empty diff.
	MinPatchLines int `yaml:"minPatchLines"`

	// MaxOutputTokens is passed through to providers.
	MaxOutputTokens int `yaml:"maxOutputTokens"`

	// Temperature is passed through to providers.
	Temperature float64 `yaml:"temperature"`
}

// QuotaConfig configures the per-user rolling 24h call budget.
type QuotaConfig struct {
	Enabled    bool `yaml:"enabled"`
	DailyLimit int  `yaml:"dailyLimit"`
}

// CacheConfig configures review result caching.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RedactionConfig configures secret redaction of source text before it
// is sent to a provider.
type RedactionConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GitConfig configures the local repository collaborator.
type GitConfig struct {
	RepositoryDir string `yaml:"repositoryDir"`
}

// SCMConfig configures the hosted source-control collaborator.
// Token acquisition and refresh are external; this is only where the
// already-provisioned credential is read from.
type SCMConfig struct {
	BaseURL string `yaml:"baseURL"`
	Token   string `yaml:"token"`
}

// ObservabilityConfig configures logging and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures request/response logging.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Level         string `yaml:"level"`         // debug, info, error
	Format        string `yaml:"format"`        // json, human
	RedactAPIKeys bool   `yaml:"redactAPIKeys"` // Redact API keys in logs
}

// MetricsConfig configures performance metrics tracking.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}
