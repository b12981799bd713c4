package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-engine/internal/adapter/cli"
	"github.com/bkyoung/review-engine/internal/adapter/llm"
	"github.com/bkyoung/review-engine/internal/adapter/llm/static"
	"github.com/bkyoung/review-engine/internal/domain"
	"github.com/bkyoung/review-engine/internal/usecase/review"
)

func newOrchestrator(t *testing.T) (*review.Orchestrator, *review.Router) {
	t.Helper()

	router, err := review.NewRouter("static-review", []string{"static-review"},
		map[string]llm.Client{domain.FamilyStatic: static.NewClient()})
	require.NoError(t, err)

	orchestrator := review.NewOrchestrator(review.OrchestratorConfig{
		Router: router,
		Engine: review.NewEngine(review.DefaultEngineConfig(), nil, nil),
	})
	return orchestrator, router
}

func TestReviewFileCommand_EmitsJSONWhenPiped(t *testing.T) {
	orchestrator, router := newOrchestrator(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))

	var out, errOut bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{
		Reviewer: orchestrator,
		Quota:    review.NewQuotaGuard(review.NewMemoryQuotaStore(), 0),
		Models:   router.Descriptors(),
		UserID:   "tester",
		Args:     cli.Arguments{OutWriter: &out, ErrWriter: &errOut},
	})
	root.SetArgs([]string{"review", "file", path})

	require.NoError(t, root.Execute())

	var outcome domain.ReviewOutcome
	require.NoError(t, json.Unmarshal(out.Bytes(), &outcome))
	require.NotNil(t, outcome.Structured)
	assert.Equal(t, 88.0, outcome.Structured.Summary.OverallScore)
	assert.Equal(t, "static", outcome.ProviderName)
}

func TestModelsCommand_ListsAllowedModels(t *testing.T) {
	_, router := newOrchestrator(t)

	var out, errOut bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{
		Models: router.Descriptors(),
		Args:   cli.Arguments{OutWriter: &out, ErrWriter: &errOut},
	})
	root.SetArgs([]string{"models"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "static-review")
	assert.Contains(t, out.String(), "static")
}

func TestQuotaCommand_Disabled(t *testing.T) {
	var out, errOut bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{
		Quota:  review.NewQuotaGuard(review.NewMemoryQuotaStore(), 0),
		UserID: "tester",
		Args:   cli.Arguments{OutWriter: &out, ErrWriter: &errOut},
	})
	root.SetArgs([]string{"quota"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "disabled")
}

func TestQuotaCommand_ShowsRemaining(t *testing.T) {
	var out, errOut bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{
		Quota:  review.NewQuotaGuard(review.NewMemoryQuotaStore(), 25),
		UserID: "tester",
		Args:   cli.Arguments{OutWriter: &out, ErrWriter: &errOut},
	})
	root.SetArgs([]string{"quota"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "25 reviews remaining for tester")
}

func TestPRCommand_RejectsBadArguments(t *testing.T) {
	var out, errOut bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{
		Args: cli.Arguments{OutWriter: &out, ErrWriter: &errOut},
	})

	root.SetArgs([]string{"review", "pr", "not-a-repo", "7"})
	require.Error(t, root.Execute())

	root.SetArgs([]string{"review", "pr", "acme/widgets", "zero"})
	require.Error(t, root.Execute())
}
