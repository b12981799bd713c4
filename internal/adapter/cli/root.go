// Package cli wires the review engine into a Cobra command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bkyoung/review-engine/internal/domain"
	"github.com/bkyoung/review-engine/internal/usecase/review"
)

// Reviewer is the use-case surface the CLI drives. Implemented by
// review.Orchestrator.
type Reviewer interface {
	ReviewFile(ctx context.Context, userID string, req domain.ReviewRequest) (*domain.ReviewOutcome, error)
	ReviewPullRequest(ctx context.Context, userID string, scm review.PullRequestFetcher, repo string, number int, modelID string) (*domain.PRReviewResult, error)
	ReviewBranch(ctx context.Context, userID string, reader review.LocalDiffReader, repoName, baseRef, targetRef, modelID string) (*domain.PRReviewResult, error)
}

// BranchSource provides local-repository access for the branch command.
type BranchSource interface {
	review.LocalDiffReader
	CurrentBranch(ctx context.Context) (string, error)
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Reviewer Reviewer
	SCM      review.PullRequestFetcher
	Branch   BranchSource
	Quota    *review.QuotaGuard
	Models   []domain.ModelDescriptor
	UserID   string
	Args     Arguments
	Version  string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "dev"
	}

	root := &cobra.Command{
		Use:     "rev",
		Short:   "LLM code review engine",
		Version: versionString,
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Run a code review",
	}
	reviewCmd.AddCommand(fileCommand(deps))
	reviewCmd.AddCommand(prCommand(deps))
	reviewCmd.AddCommand(branchCommand(deps))
	root.AddCommand(reviewCmd)
	root.AddCommand(modelsCommand(deps))
	root.AddCommand(quotaCommand(deps))

	return root
}

func fileCommand(deps Dependencies) *cobra.Command {
	var modelID string
	var contextText string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Review a single source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read source file: %w", err)
			}

			outcome, err := deps.Reviewer.ReviewFile(cmd.Context(), deps.UserID, domain.ReviewRequest{
				SourceText: string(source),
				Filename:   args[0],
				Context:    contextText,
				ModelID:    modelID,
			})
			if err != nil {
				return err
			}

			if asJSON || !review.IsOutputTerminal() {
				return writeJSON(cmd.OutOrStdout(), outcome)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), outcome.Markdown)
			return err
		},
	}

	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Model id (default from config)")
	cmd.Flags().StringVar(&contextText, "context", "", "Extra reviewer context")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the outcome as JSON")
	return cmd
}

func prCommand(deps Dependencies) *cobra.Command {
	var modelID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pr <owner/repo> <number>",
		Short: "Review a GitHub pull request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := args[0]
			if !strings.Contains(repo, "/") {
				return fmt.Errorf("repository must be owner/name, got %q", repo)
			}
			var number int
			if _, err := fmt.Sscanf(args[1], "%d", &number); err != nil || number < 1 {
				return fmt.Errorf("invalid pull request number %q", args[1])
			}

			result, err := deps.Reviewer.ReviewPullRequest(cmd.Context(), deps.UserID, deps.SCM, repo, number, modelID)
			if err != nil {
				return err
			}
			return writePRResult(cmd.OutOrStdout(), result, asJSON)
		},
	}

	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Model id (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the result as JSON")
	return cmd
}

func branchCommand(deps Dependencies) *cobra.Command {
	var baseRef, targetRef, repoName, modelID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Review changes between two refs of the local repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetRef == "" {
				current, err := deps.Branch.CurrentBranch(cmd.Context())
				if err != nil {
					return fmt.Errorf("resolve current branch: %w", err)
				}
				targetRef = current
			}

			result, err := deps.Reviewer.ReviewBranch(cmd.Context(), deps.UserID, deps.Branch, repoName, baseRef, targetRef, modelID)
			if err != nil {
				return err
			}
			return writePRResult(cmd.OutOrStdout(), result, asJSON)
		},
	}

	cmd.Flags().StringVar(&baseRef, "base", "main", "Base ref to diff against")
	cmd.Flags().StringVar(&targetRef, "target", "", "Target ref (default: current branch)")
	cmd.Flags().StringVar(&repoName, "repo", "local", "Repository name used in the result")
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Model id (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the result as JSON")
	return cmd
}

func modelsCommand(deps Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, descriptor := range deps.Models {
				limit := "no published limit"
				if descriptor.RequestsPerMinute > 0 {
					limit = fmt.Sprintf("%d req/min", descriptor.RequestsPerMinute)
				}
				if _, err := fmt.Fprintf(out, "%-30s %-12s %s\n",
					descriptor.ID, descriptor.ProviderFamily, limit); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func quotaCommand(deps Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show remaining reviews in the current 24h window",
		RunE: func(cmd *cobra.Command, args []string) error {
			remaining, limited, err := deps.Quota.Remaining(cmd.Context(), deps.UserID)
			if err != nil {
				return err
			}
			if !limited {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "quota guard disabled; reviews are unlimited")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d reviews remaining for %s\n", remaining, deps.UserID)
			return err
		},
	}
}

// writePRResult renders an aggregated review for humans or pipelines.
func writePRResult(out io.Writer, result *domain.PRReviewResult, asJSON bool) error {
	if asJSON || !review.IsOutputTerminal() {
		return writeJSON(out, result)
	}

	fmt.Fprintf(out, "# Review: %s", result.Repo)
	if result.PRNumber > 0 {
		fmt.Fprintf(out, "#%d", result.PRNumber)
	}
	fmt.Fprintf(out, " @ %s\n\n", shortCommit(result.HeadCommit))
	fmt.Fprintf(out, "Score: %.1f (%s)  Risk: %s", result.OverallScore, result.Grade, result.RiskLevel)
	if result.Cached {
		fmt.Fprint(out, "  [cached]")
	}
	fmt.Fprintf(out, "\n%s\n\n", result.Summary)

	for _, file := range result.FileReviews {
		switch {
		case file.Error != "":
			fmt.Fprintf(out, "- %s: review failed (%s)\n", file.Filename, file.Error)
		case file.Skipped != "":
			fmt.Fprintf(out, "- %s: skipped (%s)\n", file.Filename, file.Skipped)
		case file.Scored:
			fmt.Fprintf(out, "- %s: %.1f, %d issues\n", file.Filename, file.Score, len(file.Issues))
		default:
			fmt.Fprintf(out, "- %s: reviewed (unstructured)\n", file.Filename)
		}
	}
	return nil
}

func writeJSON(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func shortCommit(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
