/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/sitekeeper/pkg/buildinfo"
	"github.com/fulmenhq/sitekeeper/pkg/config"
	"github.com/fulmenhq/sitekeeper/pkg/exitcode"
	"github.com/fulmenhq/sitekeeper/pkg/ignore"
	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/fulmenhq/sitekeeper/pkg/scan"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitekeeper",
		Short: "Static-asset integrity and migration for document trees",
		Long: `Sitekeeper finds backup, duplicate and unreferenced assets in a static site
and migrates its documents with ordered, idempotent rewrite rules.

Examples:
   sitekeeper scan            # Classify assets without changing anything
   sitekeeper cleanup         # Interactive three-phase cleanup
   sitekeeper migrate --dry-run --target products
   sitekeeper version`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.Version = buildinfo.Version()
	cmd.SetVersionTemplate("sitekeeper {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newScanCommand())
	cmd.AddCommand(newCleanupCommand())
	cmd.AddCommand(newMigrateCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

func init() {
	registerSubcommands(rootCmd)
}

// Execute runs the root command with SIGINT/SIGTERM cancellation and exits
// with the code mapped from the returned error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Interrupted")
		} else {
			logger.Error("Command execution failed", logger.Err(err))
		}
		os.Exit(exitcode.FromError(err))
	}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	dryRun := false
	if f := cmd.Flags().Lookup("dry-run"); f != nil {
		dryRun, _ = cmd.Flags().GetBool("dry-run")
	}

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "sitekeeper",
		DryRun:    dryRun,
	}
	if err := logger.Initialize(config); err != nil {
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.ConfigError)
	}
}

// rootArg returns the project root positional argument, defaulting to ".".
func rootArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "."
}

// loadProject validates root and loads its configuration with flags layered on top.
// The root is validated first so a bad path never reaches a phase.
func loadProject(root string, fs *pflag.FlagSet, bindings config.FlagBindings) (string, *config.Config, *ignore.Matcher, error) {
	abs, err := scan.ValidateRoot(root)
	if err != nil {
		return "", nil, nil, err
	}
	cfg, err := config.Load(abs, fs, bindings)
	if err != nil {
		return "", nil, nil, err
	}
	newMatcher := ignore.NewOverrideMatcher
	if cfg.Scan.UseIgnoreFiles {
		newMatcher = ignore.NewMatcher
	}
	matcher, err := newMatcher(abs)
	if err != nil {
		logger.Warn("Cannot read ignore files; continuing without them", logger.Err(err))
		matcher = nil
	}
	logger.Debug("Project loaded", logger.String("root", abs), logger.Int("workers", cfg.Scan.Workers))
	return abs, cfg, matcher, nil
}

func fprintf(cmd *cobra.Command, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
