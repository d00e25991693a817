package cleanup

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// BackupMatcher recognises backup-like file names.
type BackupMatcher struct {
	patterns []string
}

// NewBackupMatcher compiles doublestar patterns. Matching is against the
// lower-cased base name only, so patterns never need a directory part.
func NewBackupMatcher(patterns []string) (*BackupMatcher, error) {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid backup pattern %q", p)
		}
		out = append(out, p)
	}
	return &BackupMatcher{patterns: out}, nil
}

// Match reports whether the base name of rel looks like a backup and which pattern matched.
func (m *BackupMatcher) Match(rel string) (string, bool) {
	base := strings.ToLower(path.Base(rel))
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, base); ok {
			return p, true
		}
	}
	return "", false
}
