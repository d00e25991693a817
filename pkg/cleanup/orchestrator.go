/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cleanup

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/fulmenhq/sitekeeper/pkg/safeio"
)

// Phase names one stage of a cleanup run.
type Phase string

const (
	PhaseBackups    Phase = "backup files"
	PhaseDuplicates Phase = "duplicate files"
	PhaseOrphans    Phase = "orphaned files"
)

// Orchestrator walks the operator through the backup, duplicate and orphan
// phases of a Plan. Deletion happens only here, only after a Yes for the
// phase or group in question, and every attempt lands in the ledger.
type Orchestrator struct {
	root    string
	confirm Confirmer
	out     io.Writer
	remove  func(rel string) error
	analyze func(rel string) (Analysis, error)
	ledger  *Ledger
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithOutput sets where listings and prompts' context are printed.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithRemover replaces the delete operation.
func WithRemover(fn func(rel string) error) Option {
	return func(o *Orchestrator) { o.remove = fn }
}

// WithLedger records into an existing ledger.
func WithLedger(l *Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// NewOrchestrator creates an orchestrator for the project at root.
func NewOrchestrator(root string, confirm Confirmer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		root:    root,
		confirm: confirm,
		out:     os.Stdout,
		ledger:  NewLedger(),
	}
	o.remove = func(rel string) error { return safeio.RemoveContained(o.root, rel) }
	o.analyze = func(rel string) (Analysis, error) { return Analyze(o.root, rel) }
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ledger returns the ledger being written.
func (o *Orchestrator) Ledger() *Ledger { return o.ledger }

// Run executes the three phases in order. Phases with no candidates are
// skipped. The returned error is either ctx's or a failure to read an answer;
// the ledger reflects everything attempted up to that point.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan) (*Ledger, error) {
	phases := []func(context.Context, *Plan) error{
		o.runBackups,
		o.runDuplicates,
		o.runOrphans,
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return o.ledger, err
		}
		if err := phase(ctx, plan); err != nil {
			return o.ledger, err
		}
	}
	return o.ledger, nil
}

func (o *Orchestrator) runBackups(ctx context.Context, plan *Plan) error {
	if len(plan.Backups) == 0 {
		logger.Debug("No backup files found")
		return nil
	}

	o.header(PhaseBackups, len(plan.Backups))
	o.printCandidates(plan.Backups, "")

	resp, err := o.confirm.Confirm(ctx, Prompt{
		Phase: PhaseBackups,
		Text:  fmt.Sprintf("Delete all %d backup files?", len(plan.Backups)),
	})
	if err != nil {
		return err
	}
	if resp != Yes {
		o.printf("⏭️  Kept all backup files\n")
		return nil
	}

	for _, c := range plan.Backups {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.delete(c.Path)
	}
	return nil
}

func (o *Orchestrator) runDuplicates(ctx context.Context, plan *Plan) error {
	if len(plan.Duplicates) == 0 {
		logger.Debug("No duplicate files found")
		return nil
	}

	o.header(PhaseDuplicates, len(plan.Duplicates))
	for i, group := range plan.Duplicates {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Members removed by an earlier phase are no longer part of the group.
		var members []Candidate
		for _, m := range group.Members {
			if !o.ledger.WasDeleted(m.Path) {
				members = append(members, m)
			}
		}
		if len(members) < 2 {
			logger.Debug("Duplicate group resolved by an earlier phase", logger.Int("group", i+1))
			continue
		}

		keeper := members[0]
		o.printf("\nGroup %d/%d (digest %d):\n", i+1, len(plan.Duplicates), group.Digest)
		o.printCandidates(members, keeper.Path)

		resp, err := o.confirm.Confirm(ctx, Prompt{
			Phase:     PhaseDuplicates,
			Text:      fmt.Sprintf("Keep %s and delete %d duplicate(s)?", keeper.Path, len(members)-1),
			AllowSkip: true,
		})
		if err != nil {
			return err
		}
		if resp != Yes {
			o.printf("⏭️  Skipped group %d\n", i+1)
			continue
		}

		for _, m := range members[1:] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if o.delete(m.Path) {
				o.ledger.RecordMerged(m.Path, keeper.Path)
			}
		}
	}
	return nil
}

func (o *Orchestrator) runOrphans(ctx context.Context, plan *Plan) error {
	var orphans []Candidate
	for _, c := range plan.Orphans {
		if !o.ledger.WasDeleted(c.Path) {
			orphans = append(orphans, c)
		}
	}
	if len(orphans) == 0 {
		logger.Debug("No orphaned files found")
		return nil
	}

	o.header(PhaseOrphans, len(orphans))
	o.printCandidates(orphans, "")
	o.printf("ℹ️  No document mentions these files by name. They may still be loaded indirectly.\n")

	resp, err := o.confirm.Confirm(ctx, Prompt{
		Phase: PhaseOrphans,
		Text:  "Show analysis of orphaned files?",
	})
	if err != nil {
		return err
	}
	if resp == Yes {
		for _, c := range orphans {
			a, err := o.analyze(c.Path)
			if err != nil {
				o.printf("  %s: cannot analyze: %v\n", c.Path, err)
				continue
			}
			o.printAnalysis(a)
		}
	}
	o.printf("Orphaned files are never deleted automatically; review them by hand.\n")
	return nil
}

// delete attempts one removal and records exactly one ledger outcome.
func (o *Orchestrator) delete(rel string) bool {
	if err := o.remove(rel); err != nil {
		o.ledger.RecordError(rel, err)
		logger.Error("Failed to delete file", logger.String("file", rel), logger.Err(err))
		o.printf("  ❌ %s: %v\n", rel, err)
		return false
	}
	o.ledger.RecordDeleted(rel)
	logger.Debug("Deleted file", logger.String("file", rel))
	o.printf("  ✅ Deleted %s\n", rel)
	return true
}

func (o *Orchestrator) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(o.out, format, args...)
}
