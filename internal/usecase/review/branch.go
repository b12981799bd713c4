package review

import (
	"context"
	"fmt"

	"github.com/bkyoung/review-engine/internal/domain"
)

// LocalDiffReader defines the outbound port for reading changed files
// from a local repository. The second return value is the resolved target
// commit hash, which anchors the cache key the same way a PR head commit
// does.
type LocalDiffReader interface {
	ChangedFiles(ctx context.Context, baseRef, targetRef string) ([]domain.ChangedFile, string, error)
}

// ReviewBranch reviews the changes between two refs of a local
// repository. It shares the pull-request pipeline: one quota reservation,
// per-file caching, pacing, and partial-failure aggregation. The result
// is keyed by the target commit, so re-reviewing an unchanged branch is a
// cache hit.
func (o *Orchestrator) ReviewBranch(ctx context.Context, userID string, reader LocalDiffReader, repoName, baseRef, targetRef, modelID string) (*domain.PRReviewResult, error) {
	files, headCommit, err := reader.ChangedFiles(ctx, baseRef, targetRef)
	if err != nil {
		return nil, NewError(KindUnknown, err.Error())
	}

	pr := domain.PullRequest{
		Repo:       repoName,
		Title:      fmt.Sprintf("%s..%s", baseRef, targetRef),
		HeadCommit: headCommit,
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

	fileReviews, reviewed := o.reviewChangedFiles(ctx, pr, files, modelID)
	if reviewed == 0 {
		failed := countFailures(fileReviews)
		if failed == 0 {
			return nil, NewError(KindNoCodeFiles, "no reviewable code files between refs")
		}
		return nil, NewError(KindUnknown, fmt.Sprintf(
			"all %d file reviews failed for %s (%s..%s)", failed, repoName, baseRef, targetRef))
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
