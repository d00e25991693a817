package cleanup

import (
	"context"
	"fmt"

	"github.com/fulmenhq/sitekeeper/pkg/dupes"
	"github.com/fulmenhq/sitekeeper/pkg/ignore"
	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/fulmenhq/sitekeeper/pkg/refs"
	"github.com/fulmenhq/sitekeeper/pkg/scan"
)

// Candidate is a file offered to the operator.
type Candidate struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Pattern string `json:"pattern,omitempty"`
}

// DuplicateCandidate is a duplicate group with member sizes.
type DuplicateCandidate struct {
	Digest  int32       `json:"digest"`
	Members []Candidate `json:"members"`
}

// Keeper returns the surviving member.
func (d DuplicateCandidate) Keeper() Candidate { return d.Members[0] }

// Plan is the complete candidate set of a run, enumerated before any prompt.
type Plan struct {
	Root       string               `json:"root"`
	Files      int                  `json:"files_scanned"`
	Documents  int                  `json:"documents"`
	Resources  int                  `json:"resources"`
	Backups    []Candidate          `json:"backups"`
	Duplicates []DuplicateCandidate `json:"duplicates"`
	Orphans    []Candidate          `json:"orphans"`
}

// Offered returns the union of every path any phase may act on.
func (p *Plan) Offered() map[string]struct{} {
	out := make(map[string]struct{})
	for _, b := range p.Backups {
		out[b.Path] = struct{}{}
	}
	for _, g := range p.Duplicates {
		for _, m := range g.Members {
			out[m.Path] = struct{}{}
		}
	}
	for _, o := range p.Orphans {
		out[o.Path] = struct{}{}
	}
	return out
}

// Empty reports whether no phase has anything to do.
func (p *Plan) Empty() bool {
	return len(p.Backups) == 0 && len(p.Duplicates) == 0 && len(p.Orphans) == 0
}

// DiscoverOptions configures candidate discovery.
type DiscoverOptions struct {
	ExcludeDirs        []string
	ExcludeGlobs       []string
	Ignore             *ignore.Matcher
	BackupPatterns     []string
	ResourceExtensions []string
	DocumentExtensions []string
	Workers            int
	Verify             bool
	// Skip lists root-relative paths never offered (the report file, for one).
	Skip []string
}

// Discover scans root once and classifies files into backups, duplicate groups
// and orphans. Only an unusable root, an invalid pattern or ctx cancellation
// fail discovery; per-file problems are logged.
func Discover(ctx context.Context, root string, opts DiscoverOptions) (*Plan, error) {
	backups, err := NewBackupMatcher(opts.BackupPatterns)
	if err != nil {
		return nil, err
	}
	scanner, err := scan.New(root, scan.Options{
		ExcludeDirNames: opts.ExcludeDirs,
		ExcludeGlobs:    opts.ExcludeGlobs,
		Ignore:          opts.Ignore,
	})
	if err != nil {
		return nil, err
	}

	isResource := scan.HasExtension(opts.ResourceExtensions...)
	isDocument := scan.HasExtension(opts.DocumentExtensions...)
	skip := make(map[string]struct{}, len(opts.Skip))
	for _, s := range opts.Skip {
		skip[s] = struct{}{}
	}

	plan := &Plan{Root: scanner.Root()}
	sizes := make(map[string]int64)
	var resources, documents []string

	for e := range scanner.Entries(ctx) {
		if _, ok := skip[e.RelPath]; ok {
			continue
		}
		plan.Files++
		sizes[e.RelPath] = e.Size
		if pattern, ok := backups.Match(e.RelPath); ok {
			plan.Backups = append(plan.Backups, Candidate{Path: e.RelPath, Size: e.Size, Pattern: pattern})
		}
		if isResource(e.RelPath) {
			resources = append(resources, e.RelPath)
		}
		if isDocument(e.RelPath) {
			documents = append(documents, e.RelPath)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan.Resources = len(resources)
	plan.Documents = len(documents)

	groups, err := dupes.NewDetector(dupes.Config{
		Root:    plan.Root,
		Workers: opts.Workers,
		Verify:  opts.Verify,
	}).Detect(ctx, resources)
	if err != nil {
		return nil, fmt.Errorf("duplicate detection: %w", err)
	}
	for _, g := range groups {
		dc := DuplicateCandidate{Digest: g.Digest}
		for _, m := range g.Members {
			dc.Members = append(dc.Members, Candidate{Path: m, Size: sizes[m]})
		}
		plan.Duplicates = append(plan.Duplicates, dc)
	}

	corpus, err := refs.NewBuilder(plan.Root, opts.Workers).Build(ctx, documents)
	if err != nil {
		return nil, fmt.Errorf("reference corpus: %w", err)
	}
	for _, o := range refs.FindOrphans(resources, corpus) {
		plan.Orphans = append(plan.Orphans, Candidate{Path: o, Size: sizes[o]})
	}

	logger.Info("Discovery complete",
		logger.Int("files", plan.Files),
		logger.Int("backups", len(plan.Backups)),
		logger.Int("duplicate_groups", len(plan.Duplicates)),
		logger.Int("orphans", len(plan.Orphans)))
	return plan, nil
}
