package council

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultTruncationBytes is the default per-file context size ceiling.
const DefaultTruncationBytes = 256 * 1024

var skipDirs = map[string]bool{
	".git":      true,
	".council":  true,
	"node_modules": true,
	"vendor":    true,
	"target":    true,
	"dist":      true,
	".worktrees": true,
}

var contextExtAllowlist = map[string]bool{
	".py": true, ".go": true, ".rs": true, ".ts": true, ".tsx": true,
	".js": true, ".jsx": true,
}

var (
	pythonImportRE = regexp.MustCompile(`(?m)^(?:from|import)\s+([\w.]+)`)
	jsImportRE     = regexp.MustCompile(`(?m)(?:from\s+["']|require\(["'])(\.[./\w-]*)["')]`)
)

// ContextBuilder constructs a ContextBundle rooted at one repository.
type ContextBuilder struct {
	repoRoot        string
	truncationBytes int64
}

// NewContextBuilder returns a builder scoped to repoRoot.
func NewContextBuilder(repoRoot string) *ContextBuilder {
	return &ContextBuilder{repoRoot: repoRoot, truncationBytes: DefaultTruncationBytes}
}

// WithTruncationBytes overrides the per-file size ceiling.
func (b *ContextBuilder) WithTruncationBytes(n int64) *ContextBuilder {
	b.truncationBytes = n
	return b
}

// Build assembles the bundle for the given target paths (relative to repoRoot).
// The filesystem walk for reverse-dependency discovery is dispatched to a
// worker goroutine via errgroup so the caller's phase driver is never blocked
// on a single synchronous directory walk.
func (b *ContextBuilder) Build(targets []string) (*ContextBundle, error) {
	bundle := &ContextBundle{
		ReverseDeps: make(map[string][]Snippet),
	}

	seen := make(map[string]bool)
	modules := make([]string, 0, len(targets))

	for _, t := range targets {
		snap, err := b.snapshotFile(t)
		if err != nil {
			return nil, err
		}
		bundle.TargetFiles = append(bundle.TargetFiles, snap)
		seen[t] = true
		modules = append(modules, fileToModule(b.repoRoot, t))

		for _, rel := range b.resolveImports(t) {
			if seen[rel] {
				continue
			}
			if relSnap, err := b.snapshotFile(rel); err == nil {
				bundle.RelatedFiles = append(bundle.RelatedFiles, relSnap)
				seen[rel] = true
			}
		}

		for _, testPath := range b.findTests(t) {
			if seen[testPath] {
				continue
			}
			if testSnap, err := b.snapshotFile(testPath); err == nil {
				bundle.TestFiles = append(bundle.TestFiles, testSnap)
				seen[testPath] = true
			}
		}
	}

	var g errgroup.Group
	var reverseDeps map[string][]Snippet
	g.Go(func() error {
		reverseDeps = b.findReverseDeps(modules)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	bundle.ReverseDeps = reverseDeps

	return bundle, nil
}

func (b *ContextBuilder) snapshotFile(relPath string) (FileSnapshot, error) {
	full := filepath.Join(b.repoRoot, relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return FileSnapshot{}, ErrInvalidTarget(fmt.Sprintf("target not found: %s", relPath)).WithCause(err)
	}
	truncated := false
	content := string(data)
	if int64(len(data)) > b.truncationBytes {
		content = string(data[:b.truncationBytes])
		truncated = true
	}
	return FileSnapshot{Path: relPath, Content: content, IsTruncated: truncated}, nil
}

func fileToModule(repoRoot, relPath string) string {
	noExt := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return strings.ReplaceAll(noExt, string(filepath.Separator), ".")
}

// resolveImports finds one hop of import targets for a file, dispatching on
// extension to a small per-language regex table.
func (b *ContextBuilder) resolveImports(relPath string) []string {
	full := filepath.Join(b.repoRoot, relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil
	}
	content := string(data)
	ext := filepath.Ext(relPath)

	var hits []string
	switch ext {
	case ".py":
		for _, m := range pythonImportRE.FindAllStringSubmatch(content, -1) {
			if rel, ok := b.resolvePythonModule(m[1]); ok {
				hits = append(hits, rel)
			}
		}
	case ".go":
		hits = append(hits, b.resolveGoImports(content)...)
	case ".ts", ".tsx", ".js", ".jsx":
		dir := filepath.Dir(relPath)
		for _, m := range jsImportRE.FindAllStringSubmatch(content, -1) {
			if rel, ok := b.resolveJSModule(dir, m[1]); ok {
				hits = append(hits, rel)
			}
		}
	}
	return hits
}

func (b *ContextBuilder) resolvePythonModule(dotted string) (string, bool) {
	parts := strings.Split(dotted, ".")
	candidate := filepath.Join(parts...)
	if fileExists(filepath.Join(b.repoRoot, candidate+".py")) {
		return candidate + ".py", true
	}
	if fileExists(filepath.Join(b.repoRoot, candidate, "__init__.py")) {
		return filepath.Join(candidate, "__init__.py"), true
	}
	return "", false
}

func (b *ContextBuilder) resolveGoImports(content string) []string {
	modPath, ok := b.moduleImportPath()
	if !ok {
		return nil
	}
	importRE := regexp.MustCompile(`(?m)^\s*"([^"]+)"`)
	var hits []string
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import (") {
			inBlock = true
			continue
		}
		if inBlock && trimmed == ")" {
			inBlock = false
			continue
		}
		if !inBlock && !strings.HasPrefix(trimmed, "import ") {
			continue
		}
		m := importRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pkg := m[1]
		if !strings.HasPrefix(pkg, modPath) {
			continue
		}
		rel := strings.TrimPrefix(pkg, modPath)
		rel = strings.TrimPrefix(rel, "/")
		dir := filepath.Join(b.repoRoot, rel)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".go") && !strings.HasSuffix(e.Name(), "_test.go") {
				hits = append(hits, filepath.Join(rel, e.Name()))
			}
		}
	}
	return hits
}

func (b *ContextBuilder) moduleImportPath() (string, bool) {
	data, err := os.ReadFile(filepath.Join(b.repoRoot, "go.mod"))
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "module "); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

func (b *ContextBuilder) resolveJSModule(fromDir, rel string) (string, bool) {
	base := filepath.Join(fromDir, rel)
	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx"} {
		cand := base + ext
		if fileExists(filepath.Join(b.repoRoot, cand)) {
			return cand, true
		}
	}
	return "", false
}

// findReverseDeps walks the repository once, recording up to three
// line-indexed snippets per file that textually references any target module.
func (b *ContextBuilder) findReverseDeps(modules []string) map[string][]Snippet {
	result := make(map[string][]Snippet)
	if len(modules) == 0 {
		return result
	}

	_ = filepath.WalkDir(b.repoRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if skipDirs[name] || strings.HasPrefix(name, ".") && name != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if !contextExtAllowlist[filepath.Ext(name)] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(b.repoRoot, path)
		if err != nil {
			return nil
		}
		content := string(data)
		for _, mod := range modules {
			if !strings.Contains(content, mod) {
				continue
			}
			result[rel] = append(result[rel], snippetsForModule(content, mod, 3)...)
		}
		return nil
	})
	return result
}

func snippetsForModule(content, module string, limit int) []Snippet {
	var snippets []Snippet
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if len(snippets) >= limit {
			break
		}
		if strings.Contains(line, module) {
			snippets = append(snippets, Snippet{
				LineStart: i + 1,
				LineEnd:   i + 1,
				Content:   strings.TrimSpace(line),
			})
		}
	}
	return snippets
}

// findTests applies filename heuristics for sibling and tests/-directory
// candidates.
func (b *ContextBuilder) findTests(relPath string) []string {
	dir := filepath.Dir(relPath)
	base := filepath.Base(relPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	var candidates []string
	switch ext {
	case ".go":
		candidates = append(candidates, filepath.Join(dir, stem+"_test.go"))
	case ".py":
		candidates = append(candidates,
			filepath.Join(dir, "test_"+stem+".py"),
			filepath.Join(dir, stem+"_test.py"),
			filepath.Join(b.repoRoot, "tests", "test_"+stem+".py"),
		)
	case ".rs":
		candidates = append(candidates,
			filepath.Join(dir, "test_"+stem+".rs"),
			filepath.Join("tests", stem+".rs"),
		)
	default:
		candidates = append(candidates,
			filepath.Join(dir, stem+".test"+ext),
			filepath.Join(dir, stem+"_test"+ext),
		)
	}

	var found []string
	for _, c := range candidates {
		full := c
		if !filepath.IsAbs(c) {
			full = filepath.Join(b.repoRoot, c)
		}
		if fileExists(full) {
			rel, err := filepath.Rel(b.repoRoot, full)
			if err == nil {
				found = append(found, rel)
			}
		}
	}
	sort.Strings(found)
	return found
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
