package review

import (
	"context"
	"time"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/domain"
)

// Redactor defines the outbound port for secret redaction. Source text
// passes through it before reaching any provider.
type Redactor interface {
	Redact(input string) string
}

// ReviewRecord is the persistence row describing one completed review.
type ReviewRecord struct {
	ID           string
	UserID       string
	Kind         string // "file" or "pr"
	Key          string // content fingerprint or PR cache key
	ModelID      string
	ProviderName string
	Score        float64
	IssueCount   int
	CreatedAt    time.Time
}

// Recorder defines the outbound port for persisting review history.
type Recorder interface {
	SaveRecord(ctx context.Context, record ReviewRecord) error
}

// Orchestrator wires the review pipeline: cache, quota, routing,
// redaction, prompting, invocation, parsing.
type Orchestrator struct {
	router   *Router
	prompts  *PromptBuilder
	parser   *Parser
	engine   *Engine
	outcomes OutcomeCache
	prCache  PRCache
	quota    *QuotaGuard
	redactor Redactor
	recorder Recorder
	logger   llmhttp.Logger
	metrics  llmhttp.Metrics

	maxOutputTokens int
	temperature     float64
	maxFilesPerPR   int
	minPatchLines   int
}

// OrchestratorConfig collects the orchestrator's collaborators. Nil
// optional fields (caches, quota, recorder, logger, metrics) disable the
// corresponding behavior.
type OrchestratorConfig struct {
	Router       *Router
	Prompts      *PromptBuilder
	Parser       *Parser
	Engine       *Engine
	OutcomeCache OutcomeCache
	PRCache      PRCache
	Quota        *QuotaGuard
	Redactor     Redactor
	Recorder     Recorder
	Logger       llmhttp.Logger
	Metrics      llmhttp.Metrics

	MaxOutputTokens int
	Temperature     float64
	MaxFilesPerPR   int
	MinPatchLines   int
}

// NewOrchestrator constructs the review pipeline.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Prompts == nil {
		cfg.Prompts = NewPromptBuilder()
	}
	if cfg.Parser == nil {
		cfg.Parser = NewParser()
	}
	if cfg.Logger == nil {
		cfg.Logger = llmhttp.NopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = llmhttp.NopMetrics{}
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 4096
	}
	if cfg.MaxFilesPerPR <= 0 {
		cfg.MaxFilesPerPR = 10
	}
	if cfg.MinPatchLines <= 0 {
		cfg.MinPatchLines = 3
	}
	return &Orchestrator{
		router:          cfg.Router,
		prompts:         cfg.Prompts,
		parser:          cfg.Parser,
		engine:          cfg.Engine,
		outcomes:        cfg.OutcomeCache,
		prCache:         cfg.PRCache,
		quota:           cfg.Quota,
		redactor:        cfg.Redactor,
		recorder:        cfg.Recorder,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		maxOutputTokens: cfg.MaxOutputTokens,
		temperature:     cfg.Temperature,
		maxFilesPerPR:   cfg.MaxFilesPerPR,
		minPatchLines:   cfg.MinPatchLines,
	}
}

// ReviewFile reviews a single piece of source text. Cache hits are served
// before the quota guard runs, so repeat reviews of unchanged content are
// free. Quota is reserved before the provider call so a rejected user
// never consumes provider budget.
func (o *Orchestrator) ReviewFile(ctx context.Context, userID string, req domain.ReviewRequest) (*domain.ReviewOutcome, error) {
	if req.SourceText == "" {
		return nil, NewError(KindNoCodeFiles, "no source text to review")
	}

	fingerprint := domain.ContentFingerprint(req.Filename, req.SourceText)
	if cached, ok := o.cachedOutcome(ctx, fingerprint); ok {
		o.metrics.RecordCacheHit("file")
		o.logger.LogInfo(ctx, "review served from cache", map[string]interface{}{
			"filename":    req.Filename,
			"fingerprint": fingerprint,
		})
		return cached, nil
	}

	if err := o.quota.Reserve(ctx, userID); err != nil {
		return nil, err
	}

	outcome, err := o.reviewWithModel(ctx, req)
	if err != nil {
		return nil, err
	}

	o.storeOutcome(ctx, fingerprint, outcome)
	o.record(ctx, userID, "file", fingerprint, outcome)
	return outcome, nil
}

// reviewWithModel runs the uncached pipeline: resolve, redact, prompt,
// invoke, parse.
func (o *Orchestrator) reviewWithModel(ctx context.Context, req domain.ReviewRequest) (*domain.ReviewOutcome, error) {
	descriptor, client, err := o.router.Resolve(req.ModelID)
	if err != nil {
		return nil, NewError(KindUnknown, err.Error())
	}

	if o.redactor != nil {
		req.SourceText = o.redactor.Redact(req.SourceText)
		req.Context = o.redactor.Redact(req.Context)
	}

	prompt, err := o.prompts.Build(req, descriptor)
	if err != nil {
		return nil, NewError(KindUnknown, err.Error())
	}

	o.metrics.RecordRequest(descriptor.ProviderFamily, descriptor.ID)
	result, err := o.engine.Invoke(ctx, client, prompt.Text, descriptor.ID, llm.InvokeOptions{
		MaxOutputTokens: o.maxOutputTokens,
		Temperature:     o.temperature,
		System:          prompt.System,
	})
	if err != nil {
		return nil, classifyProviderError(err)
	}
	o.metrics.RecordTokens(descriptor.ProviderFamily, descriptor.ID, result.TokensIn, result.TokensOut)

	outcome := o.parser.Parse(result.RawText, descriptor.ProviderFamily, descriptor.ID, result.TokensIn+result.TokensOut)
	if outcome.Structured == nil {
		o.logger.LogWarning(ctx, "provider response fell back to raw markdown", map[string]interface{}{
			"model":    descriptor.ID,
			"filename": req.Filename,
		})
	}
	return &outcome, nil
}

func (o *Orchestrator) cachedOutcome(ctx context.Context, fingerprint string) (*domain.ReviewOutcome, bool) {
	if o.outcomes == nil {
		return nil, false
	}
	outcome, ok, err := o.outcomes.GetOutcome(ctx, fingerprint)
	if err != nil {
		o.logger.LogWarning(ctx, "outcome cache lookup failed", map[string]interface{}{
			"fingerprint": fingerprint,
			"error":       err.Error(),
		})
		return nil, false
	}
	return outcome, ok
}

// storeOutcome writes through to the cache; failures degrade to a warning
// because the review itself already succeeded.
func (o *Orchestrator) storeOutcome(ctx context.Context, fingerprint string, outcome *domain.ReviewOutcome) {
	if o.outcomes == nil {
		return
	}
	if err := o.outcomes.PutOutcome(ctx, fingerprint, outcome); err != nil {
		o.logger.LogWarning(ctx, "outcome cache write failed", map[string]interface{}{
			"fingerprint": fingerprint,
			"error":       err.Error(),
		})
	}
}

func (o *Orchestrator) record(ctx context.Context, userID, kind, key string, outcome *domain.ReviewOutcome) {
	if o.recorder == nil {
		return
	}
	record := ReviewRecord{
		UserID:       userID,
		Kind:         kind,
		Key:          key,
		ModelID:      outcome.ModelID,
		ProviderName: outcome.ProviderName,
		CreatedAt:    time.Now().UTC(),
	}
	if outcome.Structured != nil {
		record.Score = outcome.Structured.Summary.OverallScore
		record.IssueCount = outcome.Structured.Summary.TotalIssues
	}
	if err := o.recorder.SaveRecord(ctx, record); err != nil {
		o.logger.LogWarning(ctx, "review record write failed", map[string]interface{}{
			"kind":  kind,
			"key":   key,
			"error": err.Error(),
		})
	}
}
