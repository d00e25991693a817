/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/fulmenhq/sitekeeper/pkg/buildinfo"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show sitekeeper version",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().Bool("extended", false, "Show module and platform information")
	cmd.Flags().Bool("json", false, "Output version information in JSON format")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	version := buildinfo.Version()
	if jsonOutput {
		versionInfo := map[string]interface{}{
			"version":   version,
			"goVersion": runtime.Version(),
			"platform":  runtime.GOOS,
			"arch":      runtime.GOARCH,
		}
		if extended {
			versionInfo["binaryVersion"] = buildinfo.BinaryVersion
			versionInfo["moduleVersion"] = buildinfo.ModuleVersion()
		}
		jsonData, err := json.MarshalIndent(versionInfo, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %v", err)
		}
		_, _ = fmt.Fprintln(out, string(jsonData))
		return nil
	}

	_, _ = fmt.Fprintf(out, "sitekeeper %s\n", version)
	if extended {
		_, _ = fmt.Fprintf(out, "Binary version: %s\n", buildinfo.BinaryVersion)
		if mv := buildinfo.ModuleVersion(); mv != "" {
			_, _ = fmt.Fprintf(out, "Module version: %s\n", mv)
		}
		_, _ = fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		_, _ = fmt.Fprintf(out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	}
	return nil
}
