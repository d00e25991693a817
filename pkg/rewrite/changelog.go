package rewrite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aymerick/raymond"
	"github.com/fulmenhq/sitekeeper/pkg/safeio"
)

// Summary counts the outcome of one run.
type Summary struct {
	Documents int `json:"documents"`
	Changed   int `json:"changed"`
	Written   int `json:"written"`
	Failed    int `json:"failed"`
}

// Changelog is the persisted record of a migrate run.
type Changelog struct {
	Timestamp string                 `json:"timestamp"`
	Target    string                 `json:"target"`
	DryRun    bool                   `json:"dry_run"`
	Rules     []string               `json:"rules"`
	Summary   Summary                `json:"summary"`
	Documents []DocumentChangeRecord `json:"documents"`
}

// Summarize counts records.
func Summarize(records []DocumentChangeRecord) Summary {
	s := Summary{Documents: len(records)}
	for _, r := range records {
		if r.Changed() {
			s.Changed++
		}
		if r.Written {
			s.Written++
		}
		if r.Error != "" {
			s.Failed++
		}
	}
	return s
}

// NewChangelog assembles a changelog. Only documents that changed or failed are listed.
func NewChangelog(at time.Time, target string, dryRun bool, rules []string, records []DocumentChangeRecord) Changelog {
	c := Changelog{
		Timestamp: at.UTC().Format(time.RFC3339),
		Target:    target,
		DryRun:    dryRun,
		Rules:     append([]string{}, rules...),
		Summary:   Summarize(records),
		Documents: []DocumentChangeRecord{},
	}
	for _, r := range records {
		if r.Changed() || r.Error != "" {
			c.Documents = append(c.Documents, r)
		}
	}
	return c
}

// WriteChangelog serializes c as indented JSON at path.
func WriteChangelog(path string, c Changelog) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode changelog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create changelog directory: %w", err)
	}
	if err := safeio.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write changelog %s: %w", path, err)
	}
	return nil
}

const changelogTemplate = `{{#if dryRun}}Dry run: no documents were written.
{{/if}}Migration of {{{target}}}: {{summary.documents}} documents, {{summary.changed}} changed, {{summary.written}} written, {{summary.failed}} failed
{{#each documents}}  {{#if error}}❌{{else}}✅{{/if}} {{{path}}}{{#if applied}} [{{{applied}}}]{{/if}}{{#if error}}: {{{error}}}{{/if}}
{{/each}}`

// RenderChangelog renders a human-readable summary of c.
func RenderChangelog(c Changelog) (string, error) {
	docs := make([]map[string]interface{}, 0, len(c.Documents))
	for _, d := range c.Documents {
		applied := ""
		for i, id := range d.Applied {
			if i > 0 {
				applied += ", "
			}
			applied += id
		}
		docs = append(docs, map[string]interface{}{
			"path":    d.Path,
			"applied": applied,
			"error":   d.Error,
		})
	}
	ctx := map[string]interface{}{
		"dryRun": c.DryRun,
		"target": c.Target,
		"summary": map[string]int{
			"documents": c.Summary.Documents,
			"changed":   c.Summary.Changed,
			"written":   c.Summary.Written,
			"failed":    c.Summary.Failed,
		},
		"documents": docs,
	}
	out, err := raymond.Render(changelogTemplate, ctx)
	if err != nil {
		return "", fmt.Errorf("failed to render changelog: %w", err)
	}
	return out, nil
}
