package review

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bkyoung/review-engine/internal/diff"
	"github.com/bkyoung/review-engine/internal/domain"
	"github.com/bkyoung/review-engine/internal/usecase/skip"
)

// PullRequestFetcher defines the outbound port for reading pull-request
// metadata and changed files from a source-control host.
type PullRequestFetcher interface {
	FetchPullRequest(ctx context.Context, repo string, number int) (domain.PullRequest, error)
	FetchChangedFiles(ctx context.Context, repo string, number int) ([]domain.ChangedFile, error)
}

// reviewableExtensions gates which changed files get sent to a provider.
var reviewableExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true,
	".tsx": true, ".java": true, ".rb": true, ".rs": true, ".c": true,
	".h": true, ".cc": true, ".cpp": true, ".hpp": true, ".cs": true,
	".sh": true, ".sql": true, ".kt": true, ".swift": true,
}

// ReviewPullRequest reviews every reviewable changed file of a pull
// request and aggregates the results. One quota reservation covers the
// whole PR. The cache key binds to the head commit, so a new push misses
// the cache and triggers a fresh review while the superseded entry stays
// untouched.
func (o *Orchestrator) ReviewPullRequest(ctx context.Context, userID string, scm PullRequestFetcher, repo string, number int, modelID string) (*domain.PRReviewResult, error) {
	pr, err := scm.FetchPullRequest(ctx, repo, number)
	if err != nil {
		return nil, classifyProviderError(err)
	}

	if result := skip.Check(skip.CheckRequest{PRTitle: pr.Title, PRDescription: pr.Body}); result.ShouldSkip {
		return nil, NewError(KindNoCodeFiles, fmt.Sprintf("review skipped: trigger found in %s", result.Reason))
	}

	key := domain.PRCacheKey(pr.Repo, pr.Number, pr.HeadCommit)
	if cached, ok := o.cachedPRReview(ctx, key); ok {
		o.metrics.RecordCacheHit("pr")
		cached.Cached = true
		return cached, nil
	}

	if err := o.quota.Reserve(ctx, userID); err != nil {
		return nil, err
	}

	files, err := scm.FetchChangedFiles(ctx, pr.Repo, pr.Number)
	if err != nil {
		return nil, classifyProviderError(err)
	}

	fileReviews, reviewed := o.reviewChangedFiles(ctx, pr, files, modelID)
	if reviewed == 0 {
		failed := countFailures(fileReviews)
		if failed == 0 {
			return nil, NewError(KindNoCodeFiles, "pull request contains no reviewable code files")
		}
		return nil, NewError(KindUnknown, fmt.Sprintf(
			"all %d file reviews failed for %s#%d", failed, pr.Repo, pr.Number))
	}

	result := aggregate(pr, fileReviews)
	if descriptor, _, err := o.router.Resolve(modelID); err == nil {
		result.ProviderName = descriptor.ProviderFamily
	}
	o.storePRReview(ctx, key, result)
	o.record(ctx, userID, "pr", key, &domain.ReviewOutcome{
		ProviderName: result.ProviderName,
		ModelID:      modelID,
	})
	return result, nil
}

// reviewChangedFiles runs the per-file loop: filter, cap, pace, review,
// and log-and-continue on individual failures. The second return value is
// the number of files that produced a usable review.
func (o *Orchestrator) reviewChangedFiles(ctx context.Context, pr domain.PullRequest, files []domain.ChangedFile, modelID string) ([]domain.FileReviewResult, int) {
	descriptor, _, err := o.router.Resolve(modelID)
	limiter := rate.NewLimiter(rate.Inf, 1)
	if err == nil && descriptor.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(descriptor.RequestsPerMinute)/60.0), 1)
	}

	var reviews []domain.FileReviewResult
	reviewed := 0
	attempted := 0

	for _, file := range files {
		if attempted >= o.maxFilesPerPR {
			break
		}

		if reason, skippable := skipReason(file, o.minPatchLines); skippable {
			reviews = append(reviews, domain.FileReviewResult{
				Filename: file.Filename,
				Status:   file.Status,
				Skipped:  reason,
			})
			continue
		}
		attempted++

		outcome, err := o.reviewPatch(ctx, limiter, pr, file, modelID)
		if err != nil {
			o.logger.LogWarning(ctx, "file review failed, continuing", map[string]interface{}{
				"repo":     pr.Repo,
				"pr":       pr.Number,
				"filename": file.Filename,
				"error":    err.Error(),
			})
			reviews = append(reviews, domain.FileReviewResult{
				Filename: file.Filename,
				Status:   file.Status,
				Error:    err.Error(),
			})
			continue
		}

		review := domain.FileReviewResult{
			Filename: file.Filename,
			Status:   file.Status,
		}
		if outcome.Structured != nil {
			review.Issues = outcome.Structured.Issues
			review.Score = outcome.Structured.Summary.OverallScore
			review.Scored = true
		}
		reviews = append(reviews, review)
		reviewed++
	}

	return reviews, reviewed
}

// reviewPatch reviews one changed file's patch text, going through the
// per-file outcome cache. Only uncached files wait on the limiter or
// reach a provider.
func (o *Orchestrator) reviewPatch(ctx context.Context, limiter *rate.Limiter, pr domain.PullRequest, file domain.ChangedFile, modelID string) (*domain.ReviewOutcome, error) {
	req := domain.ReviewRequest{
		SourceText: file.Patch,
		Filename:   file.Filename,
		Context:    fmt.Sprintf("This is a unified diff from pull request %s#%d (%s). Review only the changed code.", pr.Repo, pr.Number, pr.Title),
		ModelID:    modelID,
	}

	fingerprint := domain.ContentFingerprint(file.Filename, file.Patch)
	if cached, ok := o.cachedOutcome(ctx, fingerprint); ok {
		o.metrics.RecordCacheHit("file")
		return cached, nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	outcome, err := o.reviewWithModel(ctx, req)
	if err != nil {
		return nil, err
	}
	o.storeOutcome(ctx, fingerprint, outcome)
	return outcome, nil
}

// countFailures counts entries whose review errored, as opposed to
// entries that were skipped before reaching a provider.
func countFailures(fileReviews []domain.FileReviewResult) int {
	failed := 0
	for _, review := range fileReviews {
		if review.Error != "" {
			failed++
		}
	}
	return failed
}

// skipReason decides whether a changed file is worth reviewing at all.
func skipReason(file domain.ChangedFile, minPatchLines int) (string, bool) {
	switch {
	case file.Status == domain.FileStatusRemoved:
		return "file removed", true
	case !reviewableExtensions[strings.ToLower(path.Ext(file.Filename))]:
		return "not a code file", true
	case file.Patch == "":
		return "no patch content", true
	case diff.IsBinary(file.Patch):
		return "binary file", true
	case diff.Count(file.Patch).Changed() < minPatchLines:
		return "near-empty diff", true
	}
	return "", false
}

// aggregate folds per-file reviews into the PR-level verdict. The score
// is the mean over scored files only (70 when none carry a score, so
// unstructured-but-successful reviews still yield a neutral verdict).
// Info-severity issues appear in the per-file detail but are excluded
// from the PR-level counts and risk derivation.
func aggregate(pr domain.PullRequest, fileReviews []domain.FileReviewResult) *domain.PRReviewResult {
	counts := make(map[string]int)
	var scoreSum float64
	scored := 0
	reviewed := 0
	failures := 0
	skipped := 0

	for _, review := range fileReviews {
		if review.Error != "" {
			failures++
			continue
		}
		if review.Skipped != "" {
			skipped++
			continue
		}
		reviewed++
		if review.Scored {
			scoreSum += review.Score
			scored++
		}
		for _, issue := range review.Issues {
			if issue.Severity == domain.SeverityInfo {
				continue
			}
			counts[issue.Severity]++
		}
	}

	score := 70.0
	if scored > 0 {
		score = scoreSum / float64(scored)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	summary := fmt.Sprintf("Reviewed %d of %d changed files: %d issues found.",
		reviewed, len(fileReviews), total)
	if failures > 0 {
		summary += fmt.Sprintf(" %d file reviews failed.", failures)
	}
	if skipped > 0 {
		summary += fmt.Sprintf(" %d files skipped.", skipped)
	}

	return &domain.PRReviewResult{
		Repo:             pr.Repo,
		PRNumber:         pr.Number,
		HeadCommit:       pr.HeadCommit,
		OverallScore:     score,
		Grade:            domain.GradeForScore(score),
		RiskLevel:        domain.RiskForCounts(counts),
		Summary:          summary,
		FileReviews:      fileReviews,
		CountsBySeverity: counts,
		ReviewedAt:       time.Now().UTC(),
	}
}

func (o *Orchestrator) cachedPRReview(ctx context.Context, key string) (*domain.PRReviewResult, bool) {
	if o.prCache == nil {
		return nil, false
	}
	result, ok, err := o.prCache.GetPRReview(ctx, key)
	if err != nil {
		o.logger.LogWarning(ctx, "pr cache lookup failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}
	return result, ok
}

func (o *Orchestrator) storePRReview(ctx context.Context, key string, result *domain.PRReviewResult) {
	if o.prCache == nil {
		return
	}
	if err := o.prCache.PutPRReview(ctx, key, result); err != nil {
		o.logger.LogWarning(ctx, "pr cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
