package council

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestContextBuilderBuildGoModule(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/widget\n")
	writeFile(t, root, "internal/widget/widget.go", `package widget

import (
	"example.com/widget/internal/helper"
)

func Run() { helper.Do() }
`)
	writeFile(t, root, "internal/helper/helper.go", "package helper\n\nfunc Do() {}\n")
	writeFile(t, root, "internal/widget/widget_test.go", "package widget\n\nfunc TestRun(t *testing.T) {}\n")
	writeFile(t, root, "internal/caller/caller.go", "package caller\n\n// calls internal.widget.widget somewhere\nconst ref = \"internal.widget.widget\"\n")

	builder := NewContextBuilder(root)
	bundle, err := builder.Build([]string{"internal/widget/widget.go"})
	require.NoError(t, err)

	require.Len(t, bundle.TargetFiles, 1)
	assert.Equal(t, "internal/widget/widget.go", bundle.TargetFiles[0].Path)
	assert.False(t, bundle.TargetFiles[0].IsTruncated)

	require.Len(t, bundle.TestFiles, 1)
	assert.Equal(t, "internal/widget/widget_test.go", bundle.TestFiles[0].Path)

	var relatedPaths []string
	for _, f := range bundle.RelatedFiles {
		relatedPaths = append(relatedPaths, f.Path)
	}
	assert.Contains(t, relatedPaths, "internal/helper/helper.go")
}

func TestContextBuilderTruncatesLargeFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.go", "package main\n")
	full := filepath.Join(root, "big.go")
	require.NoError(t, os.WriteFile(full, make([]byte, 1024), 0o644))

	builder := NewContextBuilder(root).WithTruncationBytes(100)
	bundle, err := builder.Build([]string{"big.go"})
	require.NoError(t, err)
	require.Len(t, bundle.TargetFiles, 1)
	assert.True(t, bundle.TargetFiles[0].IsTruncated)
	assert.Len(t, bundle.TargetFiles[0].Content, 100)
}

func TestContextBuilderMissingTargetErrors(t *testing.T) {
	root := t.TempDir()
	builder := NewContextBuilder(root)
	_, err := builder.Build([]string{"does/not/exist.go"})
	assert.Error(t, err)
}

func TestFindTestsPython(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/mod.py", "x = 1\n")
	writeFile(t, root, "pkg/test_mod.py", "def test_x(): pass\n")

	builder := NewContextBuilder(root)
	found := builder.findTests("pkg/mod.py")
	assert.Contains(t, found, "pkg/test_mod.py")
}

func TestSnippetsForModule(t *testing.T) {
	content := "line one uses foo.bar\nirrelevant line\nfoo.bar again here\nfoo.bar third\nfoo.bar fourth"
	snips := snippetsForModule(content, "foo.bar", 3)
	require.Len(t, snips, 3)
	assert.Equal(t, 1, snips[0].LineStart)
}
