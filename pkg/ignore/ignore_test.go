package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestNewMatcherLayers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "# build output\n*.log\ndist/\n")
	writeFile(t, filepath.Join(root, IgnoreFileName), "vendor-assets/\n*.min.js\n")

	m, err := NewMatcher(root)
	if err != nil {
		t.Fatalf("NewMatcher() failed: %v", err)
	}

	tests := []struct {
		path     string
		isDir    bool
		expected bool
	}{
		{"debug.log", false, true},
		{"dist", true, true},
		{"vendor-assets", true, true},
		{"js/app.min.js", false, true},
		{"js/app.js", false, false},
		{"css/site.css", false, false},
		{".", true, false},
	}

	for _, tt := range tests {
		if got := m.IsIgnored(tt.path, tt.isDir); got != tt.expected {
			t.Errorf("IsIgnored(%q, %v) = %v, expected %v", tt.path, tt.isDir, got, tt.expected)
		}
	}
}

func TestNewMatcherWithoutIgnoreFiles(t *testing.T) {
	m, err := NewMatcher(t.TempDir())
	if err != nil {
		t.Fatalf("NewMatcher() failed: %v", err)
	}
	if m.IsIgnored("index.html", false) {
		t.Error("nothing should be ignored without ignore files")
	}
}

func TestFromPatterns(t *testing.T) {
	m := FromPatterns([]string{"# comment", "", "drafts/"})
	if !m.IsIgnored("drafts", true) {
		t.Error("drafts/ should be ignored")
	}
	if m.IsIgnored("drafts.html", false) {
		t.Error("drafts.html should not be ignored")
	}
}

func TestNilMatcher(t *testing.T) {
	var m *Matcher
	if m.IsIgnored("anything", false) {
		t.Error("nil matcher must ignore nothing")
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{".", nil},
		{"/a/b", []string{"a", "b"}},
		{"a//b/./c", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		got := splitPath(tt.input)
		if len(got) != len(tt.expected) {
			t.Errorf("splitPath(%q) = %v, expected %v", tt.input, got, tt.expected)
			continue
		}
		for i := range got {
			if got[i] != tt.expected[i] {
				t.Errorf("splitPath(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		}
	}
}

func TestNewOverrideMatcherSkipsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.bak\n*backup*\n")
	writeFile(t, filepath.Join(root, IgnoreFileName), "drafts/\n")

	m, err := NewOverrideMatcher(root)
	if err != nil {
		t.Fatalf("NewOverrideMatcher() failed: %v", err)
	}
	if m.IsIgnored("index.html.bak", false) {
		t.Error("gitignore patterns must not apply to the override matcher")
	}
	if !m.IsIgnored("drafts", true) {
		t.Error("drafts/ from .sitekeepignore should be ignored")
	}
}

func TestNewOverrideMatcherWithoutFile(t *testing.T) {
	m, err := NewOverrideMatcher(t.TempDir())
	if err != nil {
		t.Fatalf("NewOverrideMatcher() failed: %v", err)
	}
	if m.IsIgnored("index.html", false) {
		t.Error("nothing should be ignored without .sitekeepignore")
	}
}
