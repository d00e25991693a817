/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fulmenhq/sitekeeper/pkg/config"
	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/fulmenhq/sitekeeper/pkg/rewrite"
	"github.com/fulmenhq/sitekeeper/pkg/scan"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [root]",
		Short: "Apply ordered, idempotent rewrite rules to the documents of a content directory",
		Long: `Migrate applies rewrite rules, in order, to every document under <root>/<target>.
A rule whose guard reports it as already applied is skipped, so running migrate
again on a migrated tree changes nothing. Without --rules the built-in
navigation migration is used.

Rule files (.yaml, .toml, .json):

  rules:
    - id: nav-stylesheet
      old: nav.css
      new: unified-nav.css
    - id: drop-legacy-include
      old: '<script src="legacy.js"></script>'
      new: null
    - id: unified-script
      insert: '<script src="../js/unified-nav.js"></script>'
      anchor: '</body>'
      position: before`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMigrate,
	}
	cmd.Flags().String("target", "products", "Content directory, relative to root")
	cmd.Flags().String("rules", "", "Rule file (.yaml, .yml, .toml or .json)")
	cmd.Flags().Bool("dry-run", false, "Evaluate rules and report without writing documents")
	cmd.Flags().Bool("watch", false, "Re-run whenever documents under the target change")
	cmd.Flags().Duration("debounce", 300*time.Millisecond, "Quiet period before a watch re-run")
	cmd.Flags().Int("workers", 0, "Documents processed in parallel (0 = number of CPUs)")
	return cmd
}

var migrateBindings = config.FlagBindings{
	"migrate.target":     "target",
	"migrate.rules_file": "rules",
	"migrate.debounce":   "debounce",
	"scan.workers":       "workers",
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	watch, _ := cmd.Flags().GetBool("watch")

	root, cfg, matcher, err := loadProject(rootArg(args), cmd.Flags(), migrateBindings)
	if err != nil {
		return err
	}

	rules := rewrite.DefaultRules()
	source := "builtin"
	if cfg.Migrate.RulesFile != "" {
		source = resolveRulesPath(root, cfg.Migrate.RulesFile)
		rules, err = rewrite.LoadRulesFile(source)
		if err != nil {
			return err
		}
	}
	logger.Debug("Using rewrite rules", logger.String("source", source), logger.Int("count", len(rules)))

	rw, err := rewrite.New(rewrite.Config{
		Root:    root,
		Rules:   rules,
		DryRun:  dryRun,
		Workers: cfg.Scan.Workers,
	})
	if err != nil {
		return err
	}

	target := cfg.Migrate.Target
	docOpts := rewrite.DocumentOptions{
		Extensions:  cfg.Cleanup.DocumentExtensions,
		ExcludeDirs: cfg.Scan.ExcludeDirs,
		Ignore:      matcher,
	}
	pass := func(ctx context.Context) error {
		docs, err := rewrite.FindDocuments(ctx, root, target, docOpts)
		if err != nil {
			return err
		}
		records, err := rw.Rewrite(ctx, docs)
		if err != nil {
			return err
		}
		changelog := rewrite.NewChangelog(time.Now(), target, dryRun, rw.RuleIDs(), records)
		if dryRun {
			logger.Debug("Dry run; migration log not written", logger.String("path", cfg.ChangelogFile(root)))
		} else if err := rewrite.WriteChangelog(cfg.ChangelogFile(root), changelog); err != nil {
			logger.Error("Failed to write migration log", logger.Err(err))
		}
		text, err := rewrite.RenderChangelog(changelog)
		if err != nil {
			return err
		}
		fprintf(cmd, "%s", text)
		return nil
	}

	if err := pass(cmd.Context()); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	isDoc := scan.HasExtension(cfg.Cleanup.DocumentExtensions...)
	return rewrite.Watch(cmd.Context(), filepath.Join(root, filepath.FromSlash(target)), rewrite.WatchOptions{
		Debounce: cfg.Migrate.Debounce,
		Relevant: func(p string) bool { return isDoc(filepath.ToSlash(p)) },
		SkipDir:  func(name string) bool { return slices.Contains(cfg.Scan.ExcludeDirs, name) },
	}, pass)
}

// resolveRulesPath accepts paths relative to the working directory first,
// then relative to the project root.
func resolveRulesPath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return filepath.Join(root, p)
}
