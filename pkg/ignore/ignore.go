// Package ignore provides gitignore-based file filtering using go-git
package ignore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFileName is the project-level override file read on top of .gitignore.
const IgnoreFileName = ".sitekeepignore"

// Matcher answers whether a root-relative path is ignored.
type Matcher struct {
	matcher gitignore.Matcher
}

// NewMatcher creates a matcher rooted at projectRoot with layered ignore files:
// 1. .gitignore files and .git/info/exclude (foundation)
// 2. .sitekeepignore at the project root (overrides)
// Missing files are not an error.
func NewMatcher(projectRoot string) (*Matcher, error) {
	fs := osfs.New(projectRoot)

	var allPatterns []gitignore.Pattern

	if gitPatterns, err := gitignore.ReadPatterns(fs, nil); err == nil {
		allPatterns = append(allPatterns, gitPatterns...)
	}

	if lines, err := readIgnoreFile(filepath.Join(projectRoot, IgnoreFileName)); err == nil {
		for _, line := range lines {
			allPatterns = append(allPatterns, gitignore.ParsePattern(line, nil))
		}
	}

	return &Matcher{matcher: gitignore.NewMatcher(allPatterns)}, nil
}

// NewOverrideMatcher creates a matcher from .sitekeepignore alone;
// .gitignore and .git/info/exclude are not read.
func NewOverrideMatcher(projectRoot string) (*Matcher, error) {
	lines, err := readIgnoreFile(filepath.Join(projectRoot, IgnoreFileName))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return FromPatterns(lines), nil
}

// FromPatterns builds a matcher from literal gitignore-style lines.
func FromPatterns(lines []string) *Matcher {
	patterns := make([]gitignore.Pattern, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return &Matcher{matcher: gitignore.NewMatcher(patterns)}
}

// readIgnoreFile reads non-empty, non-comment lines from an ignore file
func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- fixed file name under the project root
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

// IsIgnored reports whether the slash-separated, root-relative path is ignored.
func (m *Matcher) IsIgnored(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	parts := splitPath(filepath.ToSlash(relPath))
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, isDir)
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	if path == "" || path == "." {
		return nil
	}
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}
