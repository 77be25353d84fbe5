package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tracebase-eu/tracebase/cli/output"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show CLI version information",
	Long:    `Display the version, commit hash, and build date of the tracebase CLI.`,
	PreRunE: initializeFormatter,
	RunE: func(cmd *cobra.Command, args []string) error {
		if formatter.Format == output.FormatTable {
			formatter.PrintInfo("tracebase CLI " + Version)
			formatter.PrintInfo("Commit: " + Commit)
			formatter.PrintInfo("Build Date: " + BuildDate)
			return nil
		}
		return formatter.Print(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_date": BuildDate,
		})
	},
}
