/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/sitekeeper/pkg/cleanup"
	"github.com/fulmenhq/sitekeeper/pkg/config"
	"github.com/fulmenhq/sitekeeper/pkg/ignore"
	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/spf13/cobra"
)

func newCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup [root]",
		Short: "Interactively remove backup and duplicate assets and review orphans",
		Long: `Cleanup scans the project once, then walks through three phases:

  1. Backup files   one confirmation for the whole list
  2. Duplicates     one confirmation per group (y = keep the first, n/s = skip)
  3. Orphans        listed for review only, never deleted

Every delete attempt is recorded in a JSON report (cleanup-report.json by default).`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCleanup,
	}
	cmd.Flags().Bool("yes", false, "Answer yes to every delete prompt")
	cmd.Flags().Bool("dry-run", false, "List candidates and answer no to every prompt")
	cmd.Flags().String("report", "", "Report path, relative to the project root unless absolute (default cleanup-report.json)")
	cmd.MarkFlagsMutuallyExclusive("yes", "dry-run")
	addDiscoverFlags(cmd)
	return cmd
}

var cleanupBindings = config.FlagBindings{
	"scan.workers":        "workers",
	"duplicates.verify":   "verify",
	"cleanup.report_path": "report",
}

func runCleanup(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	root, cfg, matcher, err := loadProject(rootArg(args), cmd.Flags(), cleanupBindings)
	if err != nil {
		return err
	}
	reportPath := cfg.ReportFile(root)

	plan, err := cleanup.Discover(cmd.Context(), root, discoverOptions(root, cfg, matcher))
	if err != nil {
		return err
	}
	fprintf(cmd, "Scanned %d files under %s\n", plan.Files, plan.Root)

	var confirm cleanup.Confirmer
	switch {
	case dryRun:
		confirm = cleanup.FixedConfirmer{Answer: cleanup.No}
	case yes:
		confirm = cleanup.FixedConfirmer{Answer: cleanup.Yes}
	default:
		confirm = cleanup.NewLineConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
	}

	orch := cleanup.NewOrchestrator(root, confirm, cleanup.WithOutput(cmd.OutOrStdout()))
	ledger, runErr := orch.Run(cmd.Context(), plan)

	report := ledger.Report(time.Now())
	summary := cleanup.SummaryData{Plan: plan, Report: report, DryRun: dryRun}
	if !dryRun {
		if err := cleanup.WriteReport(reportPath, report); err != nil {
			logger.Error("Failed to write cleanup report", logger.String("path", reportPath), logger.Err(err))
			if runErr == nil {
				runErr = err
			}
		} else {
			summary.ReportPath = reportPath
		}
	}

	text, err := cleanup.RenderSummary(summary)
	if err != nil {
		return err
	}
	fprintf(cmd, "%s", text)

	deleted, merged, failed := ledger.Counts()
	logger.Info("Cleanup finished",
		logger.Int("deleted", deleted),
		logger.Int("merged", merged),
		logger.Int("errors", failed))
	return runErr
}

// discoverOptions maps configuration onto discovery. Files sitekeeper itself
// writes are never offered.
func discoverOptions(root string, cfg *config.Config, matcher *ignore.Matcher) cleanup.DiscoverOptions {
	var skip []string
	for _, p := range []string{cfg.ReportFile(root), cfg.ChangelogFile(root)} {
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			skip = append(skip, filepath.ToSlash(rel))
		}
	}
	return cleanup.DiscoverOptions{
		ExcludeDirs:        cfg.Scan.ExcludeDirs,
		ExcludeGlobs:       cfg.Scan.ExcludeGlobs,
		Ignore:             matcher,
		BackupPatterns:     cfg.Cleanup.BackupPatterns,
		ResourceExtensions: cfg.Cleanup.ResourceExtensions,
		DocumentExtensions: cfg.Cleanup.DocumentExtensions,
		Workers:            cfg.Scan.Workers,
		Verify:             cfg.Duplicates.Verify,
		Skip:               skip,
	}
}
