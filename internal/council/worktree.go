package council

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/council-run/council/internal/adapters/git"
)

// Worktree is a disposable detached checkout of HEAD, owned exclusively by
// one run for its entire lifetime.
type Worktree struct {
	Path  string
	git   *git.Client
	runID string
}

// CreateWorktree adds a detached checkout of HEAD at
// <repoRoot>/.council/worktrees/<runID>, creating the parent directory first.
func CreateWorktree(ctx context.Context, gitClient *git.Client, repoRoot, runID string) (*Worktree, error) {
	path := filepath.Join(repoRoot, ".council", "worktrees", runID)
	stderr, err := gitClient.CreateWorktreeDetached(ctx, path, "HEAD")
	if err != nil {
		msg := fmt.Sprintf("git worktree add failed: %v", err)
		if stderr != "" {
			msg = fmt.Sprintf("git worktree add failed: %s", stderr)
		}
		return nil, ErrWorktreeFailed(msg).WithCause(err)
	}
	return &Worktree{Path: path, git: gitClient, runID: runID}, nil
}

// Remove force-removes the worktree via git, falling back to a direct
// filesystem removal if the git-level removal fails.
func (w *Worktree) Remove(ctx context.Context) error {
	if err := w.git.RemoveWorktreeForce(ctx, w.Path); err != nil {
		if rmErr := os.RemoveAll(w.Path); rmErr != nil {
			return ErrWorktreeFailed(fmt.Sprintf("worktree remove failed (%v) and fallback cleanup failed (%v)", err, rmErr)).WithCause(rmErr)
		}
	}
	return nil
}

// SnapshotFile extracts a single file's content at HEAD without creating a
// full worktree, for the lighter-weight Apply re-validation path.
func SnapshotFile(ctx context.Context, gitClient *git.Client, relPath string) (string, error) {
	if err := validateRelPath(relPath); err != nil {
		return "", err
	}
	content, err := gitClient.ShowFile(ctx, "HEAD", relPath)
	if err != nil {
		return "", ErrInvalidTarget(fmt.Sprintf("target not found at HEAD: %s", relPath)).WithCause(err)
	}
	return content, nil
}
