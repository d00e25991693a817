package cleanup

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

func (o *Orchestrator) header(phase Phase, n int) {
	title := titleCaser.String(string(phase))
	line := fmt.Sprintf("%s (%d)", title, n)
	o.printf("\n%s\n%s\n", line, strings.Repeat("─", runewidth.StringWidth(line)))
}

// printCandidates prints an aligned path/type/size table. The keeper, if any, is marked.
func (o *Orchestrator) printCandidates(cs []Candidate, keeper string) {
	writeCandidateTable(o.out, cs, keeper)
}

func writeCandidateTable(w io.Writer, cs []Candidate, keeper string) {
	width := 0
	for _, c := range cs {
		if cw := runewidth.StringWidth(c.Path); cw > width {
			width = cw
		}
	}
	for _, c := range cs {
		mark := "  "
		if keeper != "" {
			if c.Path == keeper {
				mark = "★ "
			} else {
				mark = "✗ "
			}
		}
		kind := extOf(c.Path)
		if kind == "" {
			kind = "-"
		}
		_, _ = fmt.Fprintf(w, "  %s%s  %-4s %10s\n", mark, runewidth.FillRight(c.Path, width), kind, FormatSize(c.Size))
	}
}

// extOf returns the lower-cased extension of rel without the dot.
func extOf(rel string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(rel)), ".")
}

func (o *Orchestrator) printAnalysis(a Analysis) {
	verdict := "no significant content detected"
	if a.Important {
		verdict = "⚠️  contains " + strings.Join(a.Markers, ", ")
	}
	o.printf("  %s: %s, %d lines, %s\n", a.Path, FormatSize(a.Size), a.Lines, verdict)
}

// FormatSize renders a byte count for listings.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

const summaryTemplate = `
{{#if dryRun}}Dry run: nothing was deleted.
{{/if}}Cleanup summary
  Backup files offered:  {{backups}}
  Duplicate groups:      {{groups}}
  Orphaned files:        {{orphans}}
  Deleted:               {{deleted}}
  Merged:                {{merged}}
  Errors:                {{errorCount}}
{{#each errors}}    ❌ {{{file}}}: {{{error}}}
{{/each}}{{#if reportPath}}Report written to {{{reportPath}}}
{{/if}}`

// SummaryData feeds the end-of-run summary.
type SummaryData struct {
	Plan       *Plan
	Report     Report
	ReportPath string
	DryRun     bool
}

// RenderSummary renders the human-readable end-of-run summary.
func RenderSummary(d SummaryData) (string, error) {
	var backups, groups, orphans int
	if d.Plan != nil {
		backups, groups, orphans = len(d.Plan.Backups), len(d.Plan.Duplicates), len(d.Plan.Orphans)
	}
	errs := make([]map[string]string, 0, len(d.Report.Errors))
	for _, e := range d.Report.Errors {
		errs = append(errs, map[string]string{"file": e.File, "error": e.Error})
	}
	ctx := map[string]interface{}{
		"dryRun":     d.DryRun,
		"backups":    backups,
		"groups":     groups,
		"orphans":    orphans,
		"deleted":    len(d.Report.Deleted),
		"merged":     len(d.Report.Merged),
		"errorCount": len(d.Report.Errors),
		"errors":     errs,
		"reportPath": d.ReportPath,
	}
	out, err := raymond.Render(summaryTemplate, ctx)
	if err != nil {
		return "", fmt.Errorf("failed to render summary: %w", err)
	}
	return out, nil
}

// WritePlan prints a non-interactive listing of a plan.
func WritePlan(w io.Writer, p *Plan) {
	_, _ = fmt.Fprintf(w, "Scanned %d files under %s (%d documents, %d resources)\n", p.Files, p.Root, p.Documents, p.Resources)

	section := func(phase Phase, n int) {
		title := fmt.Sprintf("%s (%d)", titleCaser.String(string(phase)), n)
		_, _ = fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("─", runewidth.StringWidth(title)))
	}

	section(PhaseBackups, len(p.Backups))
	writeCandidateTable(w, p.Backups, "")

	section(PhaseDuplicates, len(p.Duplicates))
	for i, g := range p.Duplicates {
		_, _ = fmt.Fprintf(w, "Group %d (digest %d):\n", i+1, g.Digest)
		writeCandidateTable(w, g.Members, g.Keeper().Path)
	}

	section(PhaseOrphans, len(p.Orphans))
	writeCandidateTable(w, p.Orphans, "")
}
