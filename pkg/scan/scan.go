// Package scan enumerates a project tree for sitekeeper.
//
// A scan is a lazy, restartable sequence: ranging over Scanner.Entries walks
// the tree afresh each time. Directories named in the exclude set are never
// descended, ignore files and exclude globs prune further, and a directory
// that cannot be read is logged and skipped rather than failing the scan.
package scan

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/sitekeeper/pkg/ignore"
	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
)

// Entry is a filesystem node found during a scan.
type Entry struct {
	RelPath string `json:"path"` // slash-separated, relative to the scan root
	AbsPath string `json:"-"`
	IsDir   bool   `json:"is_dir,omitempty"`
	Size    int64  `json:"size"`
}

// Predicate decides whether a file (by root-relative path) is yielded.
type Predicate func(relPath string) bool

// Options configures a Scanner.
type Options struct {
	// ExcludeDirNames are exact, case-sensitive directory names that are never descended.
	ExcludeDirNames []string
	// ExcludeGlobs are doublestar patterns over root-relative paths; matching
	// directories are pruned and matching files skipped.
	ExcludeGlobs []string
	// Ignore, when set, prunes paths matched by .gitignore/.sitekeepignore.
	Ignore *ignore.Matcher
	// Predicate filters files. Nil accepts every file.
	Predicate Predicate
	// IncludeDirs also yields directory entries.
	IncludeDirs bool
}

// Scanner walks one project root.
type Scanner struct {
	root    string
	opts    Options
	exclude map[string]struct{}
}

// ValidateRoot returns the absolute form of root or a *siteerrors.RootError
// when it does not exist, is not a directory, or cannot be listed.
func ValidateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", &siteerrors.RootError{Path: root, Cause: err}
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", &siteerrors.RootError{Path: root, Cause: siteerrors.ClassifyFS(err)}
	}
	if !st.IsDir() {
		return "", &siteerrors.RootError{Path: root, Cause: siteerrors.ErrRootNotDirectory}
	}
	f, err := os.Open(abs) // #nosec G304 -- user-selected project root
	if err != nil {
		return "", &siteerrors.RootError{Path: root, Cause: siteerrors.ClassifyFS(err)}
	}
	defer func() { _ = f.Close() }()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return "", &siteerrors.RootError{Path: root, Cause: siteerrors.ClassifyFS(err)}
	}
	return abs, nil
}

// New creates a scanner for root. The root is validated up front; this is the
// only scan failure that is returned instead of logged.
func New(root string, opts Options) (*Scanner, error) {
	abs, err := ValidateRoot(root)
	if err != nil {
		return nil, err
	}
	for _, g := range opts.ExcludeGlobs {
		if !doublestar.ValidatePattern(g) {
			return nil, &siteerrors.RootError{Path: root, Cause: errors.New("invalid exclude glob: " + g)}
		}
	}
	exclude := make(map[string]struct{}, len(opts.ExcludeDirNames))
	for _, name := range opts.ExcludeDirNames {
		exclude[name] = struct{}{}
	}
	return &Scanner{root: abs, opts: opts, exclude: exclude}, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string { return s.root }

// Entries yields every accepted entry under the root in walk order.
// Cancelling ctx stops the walk.
func (s *Scanner) Entries(ctx context.Context) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		_ = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return filepath.SkipAll
			}
			if err != nil {
				if p == s.root && d == nil {
					logger.Error("Scan root unreadable", logger.String("root", s.root), logger.Err(err))
					return filepath.SkipAll
				}
				logger.Warn("Skipping unreadable path", logger.String("path", p), logger.Err(err))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if p == s.root {
				return nil
			}

			rel, relErr := filepath.Rel(s.root, p)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if s.skipDir(d.Name(), rel) {
					logger.Trace("Pruned directory", logger.String("path", rel))
					return filepath.SkipDir
				}
				if s.opts.IncludeDirs {
					if !yield(Entry{RelPath: rel, AbsPath: p, IsDir: true}) {
						return filepath.SkipAll
					}
				}
				return nil
			}

			if s.skipFile(rel) {
				return nil
			}
			if s.opts.Predicate != nil && !s.opts.Predicate(rel) {
				return nil
			}

			var size int64
			if info, infoErr := d.Info(); infoErr == nil {
				size = info.Size()
			} else {
				logger.Warn("Failed to stat file", logger.String("path", rel), logger.Err(infoErr))
				return nil
			}
			if !yield(Entry{RelPath: rel, AbsPath: p, Size: size}) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// Paths yields the root-relative paths of accepted files.
func (s *Scanner) Paths(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		for e := range s.Entries(ctx) {
			if e.IsDir {
				continue
			}
			if !yield(e.RelPath) {
				return
			}
		}
	}
}

// Collect drains Entries into a slice.
func (s *Scanner) Collect(ctx context.Context) []Entry {
	var out []Entry
	for e := range s.Entries(ctx) {
		out = append(out, e)
	}
	return out
}

func (s *Scanner) skipDir(name, rel string) bool {
	if _, ok := s.exclude[name]; ok {
		return true
	}
	if s.opts.Ignore.IsIgnored(rel, true) {
		return true
	}
	return matchAny(s.opts.ExcludeGlobs, rel)
}

func (s *Scanner) skipFile(rel string) bool {
	if s.opts.Ignore.IsIgnored(rel, false) {
		return true
	}
	return matchAny(s.opts.ExcludeGlobs, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Scan is the plain form of a scan: files under root whose path satisfies
// pred, skipping directories named in excludeDirNames. An invalid root yields
// nothing; use New to observe the error.
func Scan(root string, excludeDirNames []string, pred Predicate) iter.Seq[string] {
	s, err := New(root, Options{ExcludeDirNames: excludeDirNames, Predicate: pred})
	if err != nil {
		logger.Error("Scan root rejected", logger.String("root", root), logger.Err(err))
		return func(func(string) bool) {}
	}
	return s.Paths(context.Background())
}

// HasExtension returns a predicate accepting paths whose extension (case-insensitive)
// is one of exts. Extensions are given with the leading dot.
func HasExtension(exts ...string) Predicate {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = struct{}{}
	}
	return func(rel string) bool {
		_, ok := set[strings.ToLower(path.Ext(rel))]
		return ok
	}
}

// Any combines predicates with logical OR.
func Any(preds ...Predicate) Predicate {
	return func(rel string) bool {
		for _, p := range preds {
			if p(rel) {
				return true
			}
		}
		return false
	}
}
