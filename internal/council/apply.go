package council

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type patchOp struct {
	kind   string // "add", "update", "delete"
	path   string
	moveTo string
	body   []string
}

// DefaultApply mutates dir according to patchContent, which must already
// have passed LooksLikeApplyPatch and ValidatePatchPaths. The patch-
// application engine is specified as an external, black-box routine the
// Runner merely consumes through the ApplyFunc seam (see ports.go and
// WithCollaborators) — DefaultApply is just the reference implementation
// wired in by NewRunner for the *** Begin/Add/Update/Delete/Move envelope,
// not the boundary itself; a deployment can substitute its own external
// applier (e.g. shelling out to "git apply" or "patch") without touching
// the Runner. No pack example implements this exact bespoke envelope, so
// the reference implementation is hand-rolled rather than grounded on a
// third-party patch library.
func DefaultApply(ctx context.Context, dir, patchContent string) (stdout, stderr string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	ops, err := parsePatchOps(patchContent)
	if err != nil {
		return "", err.Error(), err
	}

	var log strings.Builder
	for _, op := range ops {
		full := filepath.Join(dir, op.path)
		switch op.kind {
		case "add":
			if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
				return log.String(), err.Error(), err
			}
			content := bodyContent(op.body)
			if err := os.WriteFile(full, []byte(content), 0o640); err != nil {
				return log.String(), err.Error(), err
			}
			fmt.Fprintf(&log, "add %s\n", op.path)
		case "delete":
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return log.String(), err.Error(), err
			}
			fmt.Fprintf(&log, "delete %s\n", op.path)
		case "update":
			if err := applyUpdate(full, op.body); err != nil {
				return log.String(), err.Error(), err
			}
			if op.moveTo != "" {
				dst := filepath.Join(dir, op.moveTo)
				if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
					return log.String(), err.Error(), err
				}
				if err := os.Rename(full, dst); err != nil {
					return log.String(), err.Error(), err
				}
				fmt.Fprintf(&log, "move %s -> %s\n", op.path, op.moveTo)
			}
			fmt.Fprintf(&log, "update %s\n", op.path)
		}
	}
	return log.String(), "", nil
}

func bodyContent(body []string) string {
	var sb strings.Builder
	for _, l := range body {
		if rest, ok := strings.CutPrefix(l, "+"); ok {
			sb.WriteString(rest)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// applyUpdate applies a sequence of context/-/+ lines against the existing
// file content. A body may contain several hunks separated by "@@" lines
// (each optionally followed by a disambiguating snippet, as in a unified
// diff's hunk header); since the envelope carries no reliable numeric line
// offsets, each hunk's context/"-" lines are located by forward content
// search from the cursor left by the previous hunk rather than by assuming
// hunks are contiguous, so a later hunk touching a region far from the
// first is anchored to the right place instead of being laid over
// whatever the cursor happens to be sitting on.
func applyUpdate(path string, body []string) error {
	existing, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("update target missing: %s: %w", path, err)
	}
	origLines := strings.Split(string(existing), "\n")

	var out []string
	oi := 0
	for _, hunk := range splitHunks(body) {
		for _, l := range hunk {
			if rest, ok := strings.CutPrefix(l, "+"); ok {
				out = append(out, rest)
				continue
			}
			isDelete := strings.HasPrefix(l, "-")
			var want string
			if isDelete {
				want = l[1:]
			} else {
				want = strings.TrimPrefix(l, " ")
			}
			if idx := indexOfFrom(origLines, want, oi); idx >= 0 {
				out = append(out, origLines[oi:idx]...)
				oi = idx + 1
				if !isDelete {
					out = append(out, want)
				}
				continue
			}
			if !isDelete {
				out = append(out, want)
			}
		}
	}
	out = append(out, origLines[oi:]...)

	return os.WriteFile(path, []byte(strings.Join(out, "\n")), 0o640)
}

// splitHunks breaks an update body into hunks at lines starting with "@@".
// A body with no such marker is treated as a single hunk, preserving the
// envelope's simplest, most common shape.
func splitHunks(body []string) [][]string {
	var hunks [][]string
	var cur []string
	for _, l := range body {
		if strings.HasPrefix(l, "@@") {
			if cur != nil {
				hunks = append(hunks, cur)
			}
			cur = []string{}
			continue
		}
		cur = append(cur, l)
	}
	if cur != nil {
		hunks = append(hunks, cur)
	}
	return hunks
}

// indexOfFrom returns the index of the first line equal to target at or
// after from, or -1 if not found.
func indexOfFrom(lines []string, target string, from int) int {
	for i := from; i < len(lines); i++ {
		if lines[i] == target {
			return i
		}
	}
	return -1
}

func parsePatchOps(patch string) ([]patchOp, error) {
	lines := strings.Split(patch, "\n")
	var ops []patchOp
	var current *patchOp

	flush := func() {
		if current != nil {
			ops = append(ops, *current)
			current = nil
		}
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "*** Begin Patch"), strings.HasPrefix(line, "*** End Patch"):
			continue
		case strings.HasPrefix(line, "*** Add File: "):
			flush()
			current = &patchOp{kind: "add", path: strings.TrimSpace(strings.TrimPrefix(line, "*** Add File: "))}
		case strings.HasPrefix(line, "*** Update File: "):
			flush()
			current = &patchOp{kind: "update", path: strings.TrimSpace(strings.TrimPrefix(line, "*** Update File: "))}
		case strings.HasPrefix(line, "*** Delete File: "):
			flush()
			current = &patchOp{kind: "delete", path: strings.TrimSpace(strings.TrimPrefix(line, "*** Delete File: "))}
		case strings.HasPrefix(line, "*** Move to: "):
			if current != nil {
				current.moveTo = strings.TrimSpace(strings.TrimPrefix(line, "*** Move to: "))
			}
		default:
			if current != nil {
				current.body = append(current.body, line)
			}
		}
	}
	flush()

	if len(ops) == 0 {
		return nil, ErrPatchInvalid("no file operations found in patch")
	}
	return ops, nil
}

// ApplyToRepo loads a completed run's implementation.patch, re-validates it,
// and applies it against repoRoot. This is the user-sanctioned Apply
// post-run action (spec 4.8): it never mutates the filesystem if parsing or
// validation fails.
func ApplyToRepo(ctx context.Context, repoRoot, runID string) (stdout, stderr string, err error) {
	patchPath := filepath.Join(repoRoot, ".council", "runs", runID, "implementation.patch")
	raw, err := os.ReadFile(patchPath)
	if err != nil {
		return "", "", ErrApplyFailed(fmt.Sprintf("cannot read implementation.patch for %s", runID)).WithCause(err)
	}

	patch, ok := ExtractPatch(string(raw))
	if !ok {
		if fenced, ok2 := extractFencedBlock(string(raw)); ok2 {
			patch = fenced
		} else {
			patch = string(raw)
		}
	}
	if !LooksLikeApplyPatch(patch) {
		return "", "", ErrPatchInvalid("stored patch does not look like a valid apply-patch payload")
	}
	if err := ValidatePatchPaths(patch); err != nil {
		return "", "", err
	}

	return DefaultApply(ctx, repoRoot, patch)
}

func extractFencedBlock(text string) (string, bool) {
	parts := strings.Split(text, "```")
	if len(parts) < 3 {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
