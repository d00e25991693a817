package scan

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"testing"

	"github.com/fulmenhq/sitekeeper/pkg/ignore"
	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func sorted(seq []string) []string {
	out := slices.Clone(seq)
	sort.Strings(out)
	return out
}

func TestScanExcludesDirectoriesAndFilters(t *testing.T) {
	root := buildTree(t, map[string]string{
		"index.html":                 "<html>",
		"css/site.css":               ".x{}",
		"js/app.js":                  "var a;",
		"node_modules/lib/lib.js":    "lib",
		"products/node_modules/x.js": "x",
		"images/logo.png":            "png",
	})

	got := slices.Collect(Scan(root, []string{"node_modules"}, HasExtension(".css", ".js")))

	assert.Equal(t, []string{"css/site.css", "js/app.js"}, sorted(got))
}

func TestScanExcludeIsCaseSensitive(t *testing.T) {
	root := buildTree(t, map[string]string{
		"Backup/a.css": "a",
		"backup/b.css": "b",
	})
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		t.Skip("case-insensitive filesystem")
	}

	got := slices.Collect(Scan(root, []string{"backup"}, nil))
	assert.Equal(t, []string{"Backup/a.css"}, got)
}

func TestScanIsRestartable(t *testing.T) {
	root := buildTree(t, map[string]string{"a.css": "a", "b.css": "b"})

	seq := Scan(root, nil, HasExtension(".css"))
	first := slices.Collect(seq)
	second := slices.Collect(seq)

	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
}

func TestScanEarlyBreak(t *testing.T) {
	root := buildTree(t, map[string]string{"a.css": "a", "b.css": "b", "c.css": "c"})

	count := 0
	for range Scan(root, nil, nil) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestScannerEntriesCarrySizes(t *testing.T) {
	root := buildTree(t, map[string]string{"css/site.css": "12345", "index.html": "<p>"})

	s, err := New(root, Options{IncludeDirs: true})
	require.NoError(t, err)

	entries := s.Collect(context.Background())
	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.RelPath] = e
	}

	require.Contains(t, byPath, "css")
	assert.True(t, byPath["css"].IsDir)
	assert.Equal(t, int64(5), byPath["css/site.css"].Size)
	assert.Equal(t, filepath.Join(s.Root(), "css", "site.css"), byPath["css/site.css"].AbsPath)
}

func TestScannerGlobsAndIgnoreFiles(t *testing.T) {
	root := buildTree(t, map[string]string{
		".gitignore":            "dist/\n",
		"dist/bundle.js":        "b",
		"js/app.js":             "a",
		"js/vendor/jquery.js":   "j",
		"js/app.min.js":         "m",
		"css/generated/out.css": "o",
	})

	m, err := ignore.NewMatcher(root)
	require.NoError(t, err)

	s, err := New(root, Options{
		ExcludeGlobs: []string{"**/vendor", "**/*.min.js", "css/generated"},
		Ignore:       m,
		Predicate:    HasExtension(".js", ".css"),
	})
	require.NoError(t, err)

	got := slices.Collect(s.Paths(context.Background()))
	assert.Equal(t, []string{"js/app.js"}, got)
}

func TestScannerCancelledContext(t *testing.T) {
	root := buildTree(t, map[string]string{"a.css": "a"})
	s, err := New(root, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, slices.Collect(s.Paths(ctx)))
}

func TestScanSkipsUnreadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	root := buildTree(t, map[string]string{
		"ok/a.css":     "a",
		"locked/b.css": "b",
	})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	got := slices.Collect(Scan(root, nil, nil))
	assert.Equal(t, []string{"ok/a.css"}, got)
}

func TestNewRejectsBadRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.ErrorIs(t, err, siteerrors.ErrRootNotFound)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(file, Options{})
	assert.ErrorIs(t, err, siteerrors.ErrRootNotDirectory)

	_, err = New(t.TempDir(), Options{ExcludeGlobs: []string{"[unclosed"}})
	assert.Error(t, err)

	assert.Empty(t, slices.Collect(Scan(filepath.Join(t.TempDir(), "missing"), nil, nil)))
}

func TestHasExtensionAndAny(t *testing.T) {
	css := HasExtension(".CSS")
	js := HasExtension(".js")

	assert.True(t, css("a/b/site.css"))
	assert.True(t, css("SITE.CSS"))
	assert.False(t, css("site.css.map"))

	either := Any(css, js)
	assert.True(t, either("app.js"))
	assert.False(t, either("index.html"))
}
