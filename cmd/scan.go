/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fulmenhq/sitekeeper/pkg/cleanup"
	"github.com/fulmenhq/sitekeeper/pkg/config"
	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
	"github.com/spf13/cobra"
)

var discoverBindings = config.FlagBindings{
	"scan.workers":      "workers",
	"duplicates.verify": "verify",
}

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [root]",
		Short: "Classify backup, duplicate and orphaned assets without changing anything",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}
	cmd.Flags().String("format", "text", "Output format (text|json)")
	addDiscoverFlags(cmd)
	return cmd
}

func addDiscoverFlags(cmd *cobra.Command) {
	cmd.Flags().Int("workers", 0, "Parallel readers for hashing and references (0 = number of CPUs)")
	cmd.Flags().Bool("verify", true, "Split duplicate groups whose normalized content differs")
}

func runScan(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return fmt.Errorf("%w: unknown format %q (want text or json)", siteerrors.ErrInput, format)
	}

	root, cfg, matcher, err := loadProject(rootArg(args), cmd.Flags(), discoverBindings)
	if err != nil {
		return err
	}
	plan, err := cleanup.Discover(cmd.Context(), root, discoverOptions(root, cfg, matcher))
	if err != nil {
		return err
	}

	if format == "json" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		fprintf(cmd, "%s\n", data)
		return nil
	}
	cleanup.WritePlan(cmd.OutOrStdout(), plan)
	return nil
}
