package review

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/domain"
)

// fakeSCM serves canned pull-request fixtures.
type fakeSCM struct {
	pr       domain.PullRequest
	files    []domain.ChangedFile
	prErr    error
	filesErr error
}

func (f *fakeSCM) FetchPullRequest(ctx context.Context, repo string, number int) (domain.PullRequest, error) {
	if f.prErr != nil {
		return domain.PullRequest{}, f.prErr
	}
	return f.pr, nil
}

func (f *fakeSCM) FetchChangedFiles(ctx context.Context, repo string, number int) ([]domain.ChangedFile, error) {
	if f.filesErr != nil {
		return nil, f.filesErr
	}
	return f.files, nil
}

func goPatch(marker string) string {
	return "@@ -1,3 +1,6 @@\n" +
		" package main\n" +
		"+func " + marker + "() {}\n" +
		"+var a = 1\n" +
		"+var b = 2\n" +
		"-var old = 0\n"
}

func testPR() domain.PullRequest {
	return domain.PullRequest{
		Repo:       "acme/widgets",
		Number:     7,
		Title:      "Add widget pipeline",
		HeadCommit: "abc123def456",
		BaseCommit: "000111222333",
	}
}

func TestReviewPullRequest_AggregatesFiles(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{structuredResult(), structuredResult()},
		errs:    []error{nil, nil},
	}
	orchestrator, quotaStore := newTestOrchestrator(t, client, 10)

	scm := &fakeSCM{
		pr: testPR(),
		files: []domain.ChangedFile{
			{Filename: "pipeline.go", Status: domain.FileStatusModified, Patch: goPatch("pipeline")},
			{Filename: "worker.go", Status: domain.FileStatusAdded, Patch: goPatch("worker")},
			{Filename: "logo.png", Status: domain.FileStatusModified, Patch: "Binary files a/logo.png and b/logo.png differ"},
			{Filename: "old.go", Status: domain.FileStatusRemoved, Patch: goPatch("old")},
			{Filename: "README.md", Status: domain.FileStatusModified, Patch: goPatch("docs")},
		},
	}

	result, err := orchestrator.ReviewPullRequest(context.Background(), "alice", scm, "acme/widgets", 7, "")
	require.NoError(t, err)

	assert.Equal(t, "acme/widgets", result.Repo)
	assert.Equal(t, 7, result.PRNumber)
	assert.Equal(t, "abc123def456", result.HeadCommit)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, client.calls)
	assert.Len(t, result.FileReviews, 5)

	// Mean of two scored files, both 85.
	assert.Equal(t, 85.0, result.OverallScore)
	assert.Equal(t, "B", result.Grade)

	// The fixture review has one high and one low issue per file; info
	// would be excluded but none are present.
	assert.Equal(t, 2, result.CountsBySeverity[domain.SeverityHigh])
	assert.Equal(t, domain.RiskLow, result.RiskLevel)

	// One quota reservation for the whole PR.
	window, err := quotaStore.Window(context.Background(), "alice", result.ReviewedAt.Add(1))
	require.NoError(t, err)
	assert.Equal(t, 1, window.CallCount)

	var skipped []string
	for _, file := range result.FileReviews {
		if file.Skipped != "" {
			skipped = append(skipped, file.Filename)
		}
	}
	assert.ElementsMatch(t, []string{"logo.png", "old.go", "README.md"}, skipped)
}

func TestReviewPullRequest_PartialFailureContinues(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{structuredResult(), nil},
		errs:    []error{nil, llmhttp.NewServiceUnavailableError("static", "overloaded")},
	}
	orchestrator, _ := newTestOrchestrator(t, client, 10)

	scm := &fakeSCM{
		pr: testPR(),
		files: []domain.ChangedFile{
			{Filename: "good.go", Status: domain.FileStatusModified, Patch: goPatch("good")},
			{Filename: "bad.go", Status: domain.FileStatusModified, Patch: goPatch("bad")},
		},
	}

	result, err := orchestrator.ReviewPullRequest(context.Background(), "alice", scm, "acme/widgets", 7, "")
	require.NoError(t, err)

	require.Len(t, result.FileReviews, 2)
	assert.True(t, result.FileReviews[0].Scored)
	assert.False(t, result.FileReviews[1].Scored)
	assert.NotEmpty(t, result.FileReviews[1].Error)
	assert.Equal(t, 85.0, result.OverallScore)
	assert.Contains(t, result.Summary, "1 file reviews failed")
}

func TestReviewPullRequest_AllFailuresIsError(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{nil},
		errs:    []error{llmhttp.NewServiceUnavailableError("static", "down")},
	}
	orchestrator, _ := newTestOrchestrator(t, client, 10)

	scm := &fakeSCM{
		pr: testPR(),
		files: []domain.ChangedFile{
			{Filename: "a.go", Status: domain.FileStatusModified, Patch: goPatch("a")},
		},
	}

	_, err := orchestrator.ReviewPullRequest(context.Background(), "alice", scm, "acme/widgets", 7, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, NewError(KindUnknown, "")))
}

func TestReviewPullRequest_NoReviewableFiles(t *testing.T) {
	client := &scriptedClient{results: []*llm.InvokeResult{structuredResult()}, errs: []error{nil}}
	orchestrator, _ := newTestOrchestrator(t, client, 10)

	scm := &fakeSCM{
		pr: testPR(),
		files: []domain.ChangedFile{
			{Filename: "docs/guide.md", Status: domain.FileStatusModified, Patch: goPatch("docs")},
		},
	}

	_, err := orchestrator.ReviewPullRequest(context.Background(), "alice", scm, "acme/widgets", 7, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, NewError(KindNoCodeFiles, "")))
	assert.Equal(t, 0, client.calls)
}

func TestReviewPullRequest_SecondCallServedFromCache(t *testing.T) {
	client := &scriptedClient{results: []*llm.InvokeResult{structuredResult()}, errs: []error{nil}}
	orchestrator, quotaStore := newTestOrchestrator(t, client, 10)
	ctx := context.Background()

	scm := &fakeSCM{
		pr: testPR(),
		files: []domain.ChangedFile{
			{Filename: "a.go", Status: domain.FileStatusModified, Patch: goPatch("a")},
		},
	}

	first, err := orchestrator.ReviewPullRequest(ctx, "alice", scm, "acme/widgets", 7, "")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := orchestrator.ReviewPullRequest(ctx, "alice", scm, "acme/widgets", 7, "")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.OverallScore, second.OverallScore)

	assert.Equal(t, 1, client.calls)
	window, err := quotaStore.Window(ctx, "alice", first.ReviewedAt.Add(1))
	require.NoError(t, err)
	assert.Equal(t, 1, window.CallCount)
}

func TestReviewPullRequest_NewHeadCommitMissesCache(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{structuredResult(), structuredResult()},
		errs:    []error{nil, nil},
	}
	orchestrator, _ := newTestOrchestrator(t, client, 10)
	ctx := context.Background()

	scm := &fakeSCM{
		pr: testPR(),
		files: []domain.ChangedFile{
			{Filename: "a.go", Status: domain.FileStatusModified, Patch: goPatch("a")},
		},
	}

	first, err := orchestrator.ReviewPullRequest(ctx, "alice", scm, "acme/widgets", 7, "")
	require.NoError(t, err)

	// A new push changes the head commit and the patch content.
	scm.pr.HeadCommit = "fresh999"
	scm.files[0].Patch = goPatch("changed")

	second, err := orchestrator.ReviewPullRequest(ctx, "alice", scm, "acme/widgets", 7, "")
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Equal(t, "fresh999", second.HeadCommit)
	assert.NotEqual(t, first.HeadCommit, second.HeadCommit)
	assert.Equal(t, 2, client.calls)
}

func TestReviewPullRequest_SkipTrigger(t *testing.T) {
	client := &scriptedClient{results: []*llm.InvokeResult{structuredResult()}, errs: []error{nil}}
	orchestrator, _ := newTestOrchestrator(t, client, 10)

	pr := testPR()
	pr.Body = "Routine dependency bump.\n\n[skip review]"
	scm := &fakeSCM{pr: pr}

	_, err := orchestrator.ReviewPullRequest(context.Background(), "alice", scm, "acme/widgets", 7, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skipped")
	assert.Equal(t, 0, client.calls)
}

func TestReviewPullRequest_FileCapHonored(t *testing.T) {
	client := &scriptedClient{results: []*llm.InvokeResult{structuredResult()}, errs: []error{nil}}
	client.family = domain.FamilyStatic
	router, err := NewRouter("static-review", []string{"static-review"},
		map[string]llm.Client{domain.FamilyStatic: client})
	require.NoError(t, err)

	orchestrator := NewOrchestrator(OrchestratorConfig{
		Router:        router,
		Engine:        NewEngine(DefaultEngineConfig(), nil, nil),
		MaxFilesPerPR: 2,
	})

	var files []domain.ChangedFile
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go"} {
		files = append(files, domain.ChangedFile{
			Filename: name,
			Status:   domain.FileStatusModified,
			Patch:    goPatch(strings.TrimSuffix(name, ".go")),
		})
	}
	scm := &fakeSCM{pr: testPR(), files: files}

	result, err := orchestrator.ReviewPullRequest(context.Background(), "alice", scm, "acme/widgets", 7, "")
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	assert.Len(t, result.FileReviews, 2)
}

func TestReviewPullRequest_InfoIssuesExcludedFromCounts(t *testing.T) {
	infoHeavy := strings.Replace(validReviewJSON, `"severity": "low"`, `"severity": "info"`, 1)
	infoHeavy = strings.Replace(infoHeavy, `"countsBySeverity": {"high": 1, "low": 1}`,
		`"countsBySeverity": {"high": 1, "info": 1}`, 1)

	client := &scriptedClient{
		results: []*llm.InvokeResult{{RawText: infoHeavy, TokensIn: 1, TokensOut: 1}},
		errs:    []error{nil},
	}
	orchestrator, _ := newTestOrchestrator(t, client, 10)

	scm := &fakeSCM{
		pr: testPR(),
		files: []domain.ChangedFile{
			{Filename: "a.go", Status: domain.FileStatusModified, Patch: goPatch("a")},
		},
	}

	result, err := orchestrator.ReviewPullRequest(context.Background(), "alice", scm, "acme/widgets", 7, "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.CountsBySeverity[domain.SeverityHigh])
	assert.Zero(t, result.CountsBySeverity[domain.SeverityInfo])

	// The info issue still appears in the per-file detail.
	require.True(t, result.FileReviews[0].Scored)
	assert.Len(t, result.FileReviews[0].Issues, 2)
}

func TestReviewPullRequest_UnstructuredReviewCountsAsReviewed(t *testing.T) {
	client := &scriptedClient{
		results: []*llm.InvokeResult{{RawText: "Looks fine overall, no JSON here.", TokensIn: 10, TokensOut: 10}},
		errs:    []error{nil},
	}
	orchestrator, _ := newTestOrchestrator(t, client, 10)

	scm := &fakeSCM{
		pr: testPR(),
		files: []domain.ChangedFile{
			{Filename: "a.go", Status: domain.FileStatusModified, Patch: goPatch("a")},
		},
	}

	result, err := orchestrator.ReviewPullRequest(context.Background(), "alice", scm, "acme/widgets", 7, "")
	require.NoError(t, err)

	require.Len(t, result.FileReviews, 1)
	assert.False(t, result.FileReviews[0].Scored)
	assert.Empty(t, result.FileReviews[0].Error)
	assert.Contains(t, result.Summary, "Reviewed 1 of 1 changed files")
	assert.Equal(t, 70.0, result.OverallScore)
}

func TestSkipReason(t *testing.T) {
	cases := []struct {
		name string
		file domain.ChangedFile
		want string
	}{
		{
			name: "removed file",
			file: domain.ChangedFile{Filename: "a.go", Status: domain.FileStatusRemoved, Patch: goPatch("a")},
			want: "file removed",
		},
		{
			name: "non-code extension",
			file: domain.ChangedFile{Filename: "a.md", Status: domain.FileStatusModified, Patch: goPatch("a")},
			want: "not a code file",
		},
		{
			name: "binary",
			file: domain.ChangedFile{Filename: "a.go", Status: domain.FileStatusModified, Patch: "GIT binary patch\n..."},
			want: "binary file",
		},
		{
			name: "near-empty diff",
			file: domain.ChangedFile{Filename: "a.go", Status: domain.FileStatusModified, Patch: "@@ -1 +1 @@\n+x := 1\n"},
			want: "near-empty diff",
		},
		{
			name: "reviewable",
			file: domain.ChangedFile{Filename: "a.go", Status: domain.FileStatusModified, Patch: goPatch("a")},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, skipped := skipReason(tc.file, 3)
			assert.Equal(t, tc.want, reason)
			assert.Equal(t, tc.want != "", skipped)
		})
	}
}
