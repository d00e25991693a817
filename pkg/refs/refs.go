// Package refs decides whether a resource file is cited by any document.
//
// The test is textual: a resource counts as referenced when its file name, or
// its file name without extension, appears anywhere in the concatenated
// documents. References assembled at runtime (string concatenation,
// variables) are invisible to it, so a file flagged as an orphan may still be
// in use.
package refs

import (
	"context"
	"path"
	"runtime"
	"strings"

	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/fulmenhq/sitekeeper/pkg/safeio"
	"golang.org/x/sync/errgroup"
)

// separator is placed between documents so a name cannot be formed across a boundary.
const separator = "\n\x00\n"

// Corpus is the read-only concatenation of every readable document.
type Corpus struct {
	text      string
	documents int
	skipped   []string
}

// NewCorpus builds a corpus from in-memory document texts.
func NewCorpus(texts ...string) Corpus {
	return Corpus{text: strings.Join(texts, separator), documents: len(texts)}
}

// Contains reports whether s occurs in the corpus.
func (c Corpus) Contains(s string) bool { return strings.Contains(c.text, s) }

// Documents returns how many documents were concatenated.
func (c Corpus) Documents() int { return c.documents }

// Skipped lists documents that could not be read.
func (c Corpus) Skipped() []string { return c.skipped }

// Len returns the corpus size in bytes.
func (c Corpus) Len() int { return len(c.text) }

// ReadFunc loads a document by root-relative path.
type ReadFunc func(rel string) ([]byte, error)

// Builder reads documents concurrently into a Corpus.
type Builder struct {
	read    ReadFunc
	workers int
}

// NewBuilder creates a builder reading from root. workers <= 0 means runtime.NumCPU().
func NewBuilder(root string, workers int) *Builder {
	return NewBuilderWithReader(func(rel string) ([]byte, error) {
		return safeio.ReadFileContained(root, rel)
	}, workers)
}

// NewBuilderWithReader creates a builder with a custom reader.
func NewBuilderWithReader(read ReadFunc, workers int) *Builder {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Builder{read: read, workers: workers}
}

// Build concatenates documents in input order. Unreadable documents are
// logged and skipped. All reads finish before Build returns.
func (b *Builder) Build(ctx context.Context, documents []string) (Corpus, error) {
	texts := make([]string, len(documents))
	ok := make([]bool, len(documents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range documents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := b.read(documents[i])
			if err != nil {
				logger.Warn("Skipping unreadable document", logger.String("file", documents[i]), logger.Err(err))
				return nil
			}
			texts[i] = string(data)
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Corpus{}, err
	}

	var kept []string
	var skipped []string
	for i := range documents {
		if ok[i] {
			kept = append(kept, texts[i])
		} else {
			skipped = append(skipped, documents[i])
		}
	}
	c := NewCorpus(kept...)
	c.skipped = skipped
	logger.Debug("Reference corpus built",
		logger.Int("documents", c.documents), logger.Int("skipped", len(skipped)), logger.Int("bytes", c.Len()))
	return c, nil
}

// Stem returns the base name of p without its final extension.
func Stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// IsOrphan reports whether neither the base name nor the stem of resource
// occurs in corpus. An empty stem (".js") is not used as a search term.
func IsOrphan(resource string, corpus Corpus) bool {
	base := path.Base(resource)
	if corpus.Contains(base) {
		return false
	}
	if stem := Stem(resource); stem != "" && corpus.Contains(stem) {
		return false
	}
	return true
}

// FindOrphans returns the resources, in input order, that IsOrphan flags.
func FindOrphans(resources []string, corpus Corpus) []string {
	var orphans []string
	for _, r := range resources {
		if IsOrphan(r, corpus) {
			orphans = append(orphans, r)
		}
	}
	return orphans
}
