package council

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultVerifyTimeout bounds a single verification command.
const DefaultVerifyTimeout = 5 * time.Minute

type verifyPlan struct {
	dir      string
	commands [][]string
}

// Verifier detects the project kind under a worktree and runs its fixed
// command suite.
type Verifier struct {
	Timeout time.Duration
}

// NewVerifier returns a Verifier with the default per-command timeout.
func NewVerifier() *Verifier {
	return &Verifier{Timeout: DefaultVerifyTimeout}
}

// RunAll detects the project kind rooted at workingRoot (optionally narrowed
// by a targetRelPath whose directory is walked upward first) and executes its
// command suite in order.
func (v *Verifier) RunAll(ctx context.Context, workingRoot string, targetRelPath string) []VerifyResult {
	plan := detectProjectKind(workingRoot, targetRelPath)
	results := make([]VerifyResult, 0, len(plan.commands))
	for _, cmd := range plan.commands {
		results = append(results, v.runCommand(ctx, plan.dir, cmd))
	}
	return results
}

func (v *Verifier) runCommand(ctx context.Context, dir string, args []string) VerifyResult {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := VerifyResult{Command: joinArgs(args)}
	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	switch {
	case cmdCtx.Err() == context.DeadlineExceeded:
		result.Success = false
		result.Stderr = "command timed out after " + timeout.String()
	case err != nil:
		result.Success = false
		if result.Stderr == "" {
			result.Stderr = err.Error()
		}
	default:
		result.Success = true
	}
	return result
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

// detectProjectKind walks upward from the target directory (if any) toward
// workingRoot looking for a native build manifest, then falls back to
// workingRoot's own manifest, then to the interpreted-language defaults.
func detectProjectKind(workingRoot, targetRelPath string) verifyPlan {
	startDir := workingRoot
	if targetRelPath != "" {
		startDir = filepath.Join(workingRoot, filepath.Dir(targetRelPath))
	}

	if dir, manifest, ok := findManifestUpward(startDir, workingRoot, "Cargo.toml"); ok {
		return verifyPlan{
			dir: dir,
			commands: [][]string{
				{"cargo", "check", "--offline", "--manifest-path", manifest},
				{"cargo", "test", "--offline", "--manifest-path", manifest},
			},
		}
	}
	if dir, manifest, ok := findManifestUpward(startDir, workingRoot, "go.mod"); ok {
		_ = manifest
		return verifyPlan{
			dir: dir,
			commands: [][]string{
				{"go", "build", "./..."},
				{"go", "test", "./..."},
			},
		}
	}
	if dir, _, ok := findManifestUpward(startDir, workingRoot, "package.json"); ok {
		return verifyPlan{
			dir: dir,
			commands: [][]string{
				{"npm", "run", "build", "--if-present"},
				{"npm", "test", "--if-present"},
			},
		}
	}

	return verifyPlan{
		dir: workingRoot,
		commands: [][]string{
			{"ruff", "format", "."},
			{"ruff", "check", "."},
			{"pytest", "-q"},
		},
	}
}

// findManifestUpward walks from startDir up to (and including) root looking
// for filename, returning the directory containing it and its full path.
func findManifestUpward(startDir, root, filename string) (dir, manifest string, ok bool) {
	cur := startDir
	for {
		candidate := filepath.Join(cur, filename)
		if _, err := os.Stat(candidate); err == nil {
			return cur, candidate, true
		}
		if cur == root || cur == filepath.Dir(cur) {
			break
		}
		cur = filepath.Dir(cur)
	}
	candidate := filepath.Join(root, filename)
	if _, err := os.Stat(candidate); err == nil {
		return root, candidate, true
	}
	return "", "", false
}

// CountFailures returns how many VerifyResults were unsuccessful.
func CountFailures(results []VerifyResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}
