// Package dupes groups stylesheets and scripts whose normalized content is equal.
package dupes

import (
	"context"
	"runtime"

	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/fulmenhq/sitekeeper/pkg/normalize"
	"github.com/fulmenhq/sitekeeper/pkg/safeio"
	"golang.org/x/sync/errgroup"
)

// Group is a set of files sharing a digest. Members keep first-seen order;
// Members[0] is the keeper.
type Group struct {
	Digest  int32    `json:"digest"`
	Members []string `json:"members"`
}

// Keeper returns the member that survives a merge.
func (g Group) Keeper() string { return g.Members[0] }

// RemovalCandidates returns every member except the keeper.
func (g Group) RemovalCandidates() []string { return g.Members[1:] }

// ReadFunc loads a file by root-relative path.
type ReadFunc func(rel string) ([]byte, error)

// Config configures a Detector.
type Config struct {
	// Root is the project root paths are relative to.
	Root string
	// Workers bounds concurrent reads; 0 means runtime.NumCPU().
	Workers int
	// Verify splits a digest bucket whose members' normalized text differs,
	// so hash collisions never produce a group.
	Verify bool
	// Read overrides how files are loaded. Defaults to a root-contained read.
	Read ReadFunc
}

// Detector finds duplicate groups.
type Detector struct {
	config Config
}

// NewDetector creates a detector.
func NewDetector(config Config) *Detector {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.Read == nil {
		root := config.Root
		config.Read = func(rel string) ([]byte, error) {
			return safeio.ReadFileContained(root, rel)
		}
	}
	return &Detector{config: config}
}

type fingerprint struct {
	ok         bool
	digest     int32
	normalized string
}

// Detect reads, normalizes and digests every .css/.js file in files and returns
// the groups with more than one member. Other files are ignored. A file that
// cannot be read is logged and left out of every group. The only error
// returned is ctx's.
func (d *Detector) Detect(ctx context.Context, files []string) ([]Group, error) {
	candidates := make([]string, 0, len(files))
	kinds := make([]normalize.Kind, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		kind, ok := normalize.KindFor(f)
		if !ok {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		candidates = append(candidates, f)
		kinds = append(kinds, kind)
	}

	results := make([]fingerprint, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Workers)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := d.config.Read(candidates[i])
			if err != nil {
				logger.Warn("Excluding unreadable file from duplicate detection",
					logger.String("file", candidates[i]), logger.Err(err))
				return nil
			}
			fp, norm := normalize.Fingerprint(candidates[i], string(data), kinds[i])
			results[i] = fingerprint{ok: true, digest: fp.Digest}
			if d.config.Verify {
				results[i].normalized = norm
			}
			return nil
		})
	}
	// Every digest must be in before bucketing.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return d.bucket(candidates, results), nil
}

func (d *Detector) bucket(paths []string, results []fingerprint) []Group {
	var order []int32
	buckets := make(map[int32][]int)
	for i, r := range results {
		if !r.ok {
			continue
		}
		if _, exists := buckets[r.digest]; !exists {
			order = append(order, r.digest)
		}
		buckets[r.digest] = append(buckets[r.digest], i)
	}

	var groups []Group
	for _, digest := range order {
		members := buckets[digest]
		if len(members) < 2 {
			continue
		}
		for _, part := range d.partition(paths, members, results) {
			if len(part) < 2 {
				continue
			}
			names := make([]string, len(part))
			for j, idx := range part {
				names[j] = paths[idx]
			}
			groups = append(groups, Group{Digest: digest, Members: names})
		}
	}

	logger.Debug("Duplicate detection complete",
		logger.Int("files", len(paths)), logger.Int("groups", len(groups)))
	return groups
}

// partition splits one digest bucket by normalized text when verification is on.
func (d *Detector) partition(paths []string, members []int, results []fingerprint) [][]int {
	if !d.config.Verify {
		return [][]int{members}
	}
	var parts [][]int
	index := make(map[string]int)
	for _, idx := range members {
		text := results[idx].normalized
		if p, ok := index[text]; ok {
			parts[p] = append(parts[p], idx)
			continue
		}
		if len(parts) > 0 {
			logger.Warn("Digest collision between different contents",
				logger.String("file", paths[idx]), logger.String("first", paths[parts[0][0]]),
				logger.Int("digest", int(results[idx].digest)))
		}
		index[text] = len(parts)
		parts = append(parts, []int{idx})
	}
	return parts
}
