/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package rewrite

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/sitekeeper/pkg/ignore"
	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/fulmenhq/sitekeeper/pkg/safeio"
	"github.com/fulmenhq/sitekeeper/pkg/scan"
	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
	"golang.org/x/sync/errgroup"
)

// DocumentChangeRecord describes what a run did to one document.
type DocumentChangeRecord struct {
	Path    string   `json:"path"`
	Applied []string `json:"applied"`
	Written bool     `json:"written"`
	Error   string   `json:"error,omitempty"`
}

// Changed reports whether any rule applied.
func (r DocumentChangeRecord) Changed() bool { return len(r.Applied) > 0 }

// Config configures a Rewriter.
type Config struct {
	Root    string
	Rules   []Rule
	DryRun  bool
	Workers int
	// Read and Write default to contained file access under Root.
	Read  func(rel string) ([]byte, error)
	Write func(rel string, data []byte) error
}

// Rewriter applies one ordered rule list to documents.
type Rewriter struct {
	config Config
}

// New creates a rewriter. Rules are validated up front.
func New(config Config) (*Rewriter, error) {
	for _, r := range config.Rules {
		if err := r.Validate(); err != nil {
			return nil, &siteerrors.RuleError{RuleID: r.ID, Message: "invalid rule", Cause: err}
		}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	root := config.Root
	if config.Read == nil {
		config.Read = func(rel string) ([]byte, error) {
			return safeio.ReadFileContained(root, rel)
		}
	}
	if config.Write == nil {
		config.Write = func(rel string, data []byte) error {
			p, err := safeio.Resolve(root, rel)
			if err != nil {
				return err
			}
			return safeio.WriteFileAtomic(p, data)
		}
	}
	return &Rewriter{config: config}, nil
}

// RuleIDs returns the configured rule ids in order.
func (rw *Rewriter) RuleIDs() []string {
	ids := make([]string, 0, len(rw.config.Rules))
	for _, r := range rw.config.Rules {
		ids = append(ids, r.ID)
	}
	return ids
}

// Rewrite processes docs and returns one record per document in input order.
// Documents are independent: a read or write failure is recorded on that
// document only. The error is non-nil only when ctx is cancelled.
func (rw *Rewriter) Rewrite(ctx context.Context, docs []string) ([]DocumentChangeRecord, error) {
	records := make([]DocumentChangeRecord, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rw.config.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = rw.rewriteOne(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return records, err
	}

	var changed, written, failed int
	for _, r := range records {
		if r.Changed() {
			changed++
		}
		if r.Written {
			written++
		}
		if r.Error != "" {
			failed++
		}
	}
	logger.Info("Rewrite complete",
		logger.Int("documents", len(docs)),
		logger.Int("changed", changed),
		logger.Int("written", written),
		logger.Int("failed", failed),
		logger.Bool("dry_run", rw.config.DryRun))
	return records, nil
}

func (rw *Rewriter) rewriteOne(doc string) DocumentChangeRecord {
	rec := DocumentChangeRecord{Path: doc, Applied: []string{}}

	data, err := rw.config.Read(doc)
	if err != nil {
		logger.Warn("Cannot read document", logger.String("file", doc), logger.Err(err))
		rec.Error = err.Error()
		return rec
	}

	text, applied := ApplyRules(string(data), rw.config.Rules)
	if len(applied) == 0 {
		logger.Trace("Document already migrated", logger.String("file", doc))
		return rec
	}
	rec.Applied = applied

	if rw.config.DryRun {
		logger.Info("Would rewrite document", logger.String("file", doc), logger.Int("rules", len(applied)))
		return rec
	}
	if err := rw.config.Write(doc, []byte(text)); err != nil {
		logger.Error("Failed to write document", logger.String("file", doc), logger.Err(err))
		rec.Error = err.Error()
		return rec
	}
	rec.Written = true
	logger.Debug("Rewrote document", logger.String("file", doc), logger.Int("rules", len(applied)))
	return rec
}

// DocumentOptions selects the documents a migration covers.
type DocumentOptions struct {
	Extensions  []string
	ExcludeDirs []string
	Ignore      *ignore.Matcher
}

// FindDocuments lists documents under root/target, relative to root. Ignore
// patterns are evaluated against root-relative paths.
func FindDocuments(ctx context.Context, root, target string, opts DocumentOptions) ([]string, error) {
	isDoc := scan.HasExtension(opts.Extensions...)
	clean, err := safeio.CleanUserPath(target)
	if err != nil {
		return nil, fmt.Errorf("%w: target %q: %v", siteerrors.ErrInput, target, err)
	}
	prefix := strings.Trim(clean, "/")
	if prefix == "." {
		prefix = ""
	}
	inTarget := func(rel string) bool {
		return prefix == "" || strings.HasPrefix(rel, prefix+"/")
	}
	if prefix != "" {
		if _, err := scan.ValidateRoot(filepath.Join(root, filepath.FromSlash(prefix))); err != nil {
			return nil, err
		}
	}

	s, err := scan.New(root, scan.Options{
		ExcludeDirNames: opts.ExcludeDirs,
		Ignore:          opts.Ignore,
		Predicate:       func(rel string) bool { return inTarget(rel) && isDoc(rel) },
	})
	if err != nil {
		return nil, err
	}
	var docs []string
	for rel := range s.Paths(ctx) {
		docs = append(docs, rel)
	}
	return docs, ctx.Err()
}
