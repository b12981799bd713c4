// Package git reads changed files from a local repository so branches
// can be reviewed without going through a source-control host.
package git

import (
	"bytes"
	"context"
	"fmt"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	formatdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bkyoung/review-engine/internal/domain"
)

// Engine reads diffs from a local repository backed by go-git.
type Engine struct {
	repoDir string
}

// NewEngine constructs a Git engine for the provided repository directory.
func NewEngine(repoDir string) *Engine {
	return &Engine{repoDir: repoDir}
}

// ChangedFiles lists the files changed between two refs, with per-file
// unified patches. The context is accepted for interface symmetry;
// go-git's patch computation is not cancellable mid-flight.
func (e *Engine) ChangedFiles(ctx context.Context, baseRef, targetRef string) ([]domain.ChangedFile, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	repo, err := goGit.PlainOpenWithOptions(e.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, "", fmt.Errorf("open repo: %w", err)
	}

	baseCommit, err := resolveCommit(repo, baseRef)
	if err != nil {
		return nil, "", fmt.Errorf("resolve base ref: %w", err)
	}

	targetCommit, err := resolveCommit(repo, targetRef)
	if err != nil {
		return nil, "", fmt.Errorf("resolve target ref: %w", err)
	}

	patch, err := baseCommit.Patch(targetCommit)
	if err != nil {
		return nil, "", fmt.Errorf("compute patch: %w", err)
	}

	files := make([]domain.ChangedFile, 0, len(patch.FilePatches()))
	for _, fp := range patch.FilePatches() {
		path, status := diffPathAndStatus(fp)
		patchText, err := encodeFilePatch(fp)
		if err != nil {
			return nil, "", fmt.Errorf("encode patch: %w", err)
		}
		files = append(files, domain.ChangedFile{
			Filename: path,
			Status:   status,
			Patch:    patchText,
		})
	}

	return files, targetCommit.Hash.String(), nil
}

// CurrentBranch returns the name of the checked-out branch.
func (e *Engine) CurrentBranch(ctx context.Context) (string, error) {
	repo, err := goGit.PlainOpenWithOptions(e.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	name := head.Name()
	if name.IsBranch() {
		return name.Short(), nil
	}
	return "", fmt.Errorf("detached HEAD")
}

// resolveCommit resolves a ref trying the plain name, a local branch, and
// an origin remote branch in that order.
func resolveCommit(repo *goGit.Repository, ref string) (*object.Commit, error) {
	candidates := []string{
		ref,
		fmt.Sprintf("refs/heads/%s", ref),
		fmt.Sprintf("refs/remotes/origin/%s", ref),
	}

	var lastErr error
	for _, candidate := range candidates {
		name := plumbing.Revision(candidate)
		hash, err := repo.ResolveRevision(name)
		if err != nil {
			lastErr = err
			continue
		}
		return repo.CommitObject(*hash)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("unable to resolve ref %s", ref)
}

// diffPathAndStatus maps a file patch to its path and change status.
// Renames are reported as modifications of the new path.
func diffPathAndStatus(fp formatdiff.FilePatch) (path, status string) {
	from, to := fp.Files()

	switch {
	case from == nil && to != nil:
		return to.Path(), domain.FileStatusAdded
	case from != nil && to == nil:
		return from.Path(), domain.FileStatusRemoved
	case from != nil && to != nil:
		return to.Path(), domain.FileStatusModified
	default:
		return "", domain.FileStatusModified
	}
}

func encodeFilePatch(fp formatdiff.FilePatch) (string, error) {
	var buf bytes.Buffer
	encoder := formatdiff.NewUnifiedEncoder(&buf, formatdiff.DefaultContextLines)
	if err := encoder.Encode(singlePatch{fp: fp}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type singlePatch struct {
	fp formatdiff.FilePatch
}

func (s singlePatch) FilePatches() []formatdiff.FilePatch {
	return []formatdiff.FilePatch{s.fp}
}

func (s singlePatch) Message() string {
	return ""
}
