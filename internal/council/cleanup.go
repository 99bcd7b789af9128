package council

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/council-run/council/internal/adapters/git"
)

// DefaultRetentionCount is the maximum number of run directories kept
// regardless of age.
const DefaultRetentionCount = 20

// DefaultRetentionAge is the maximum age of a run directory before it
// becomes eligible for pruning regardless of count.
const DefaultRetentionAge = 24 * time.Hour

type runEntry struct {
	name    string
	path    string
	modTime time.Time
}

// CleanupOldJobs prunes run directories under <repoRoot>/.council/runs beyond
// retentionCount or older than retentionAge, and attempts to remove each
// pruned run's associated worktree. Every failure here is logged and
// swallowed: cleanup never fails the enclosing job.
func CleanupOldJobs(ctx context.Context, gitClient *git.Client, repoRoot string, retentionCount int, retentionAge time.Duration, logger *slog.Logger) {
	if retentionCount <= 0 {
		retentionCount = DefaultRetentionCount
	}
	if retentionAge <= 0 {
		retentionAge = DefaultRetentionAge
	}

	runsDir := filepath.Join(repoRoot, ".council", "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return
	}

	var runs []runEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, runEntry{
			name:    e.Name(),
			path:    filepath.Join(runsDir, e.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].modTime.After(runs[j].modTime)
	})

	now := time.Now()
	for i, run := range runs {
		age := now.Sub(run.modTime)
		if i < retentionCount && age <= retentionAge {
			continue
		}
		pruneRun(ctx, gitClient, repoRoot, run, logger)
	}
}

func pruneRun(ctx context.Context, gitClient *git.Client, repoRoot string, run runEntry, logger *slog.Logger) {
	worktreePath := filepath.Join(repoRoot, ".council", "worktrees", run.name)
	if _, err := os.Stat(worktreePath); err == nil {
		if err := gitClient.RemoveWorktreeForce(ctx, worktreePath); err != nil {
			if logger != nil {
				logger.Warn("cleanup: git worktree remove failed, falling back to rmdir", "run", run.name, "error", err)
			}
			if rmErr := os.RemoveAll(worktreePath); rmErr != nil && logger != nil {
				logger.Warn("cleanup: worktree fallback removal failed", "run", run.name, "error", rmErr)
			}
		}
	}
	if err := os.RemoveAll(run.path); err != nil && logger != nil {
		logger.Warn("cleanup: run directory removal failed", "run", run.name, "error", err)
	}
}
