package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a single non-interactive analysis",
	Long: `Run a single analysis in non-interactive mode and exit.
Output is the plain text report; use the root --json flag for JSON.`,
	Example: `
# Summarize a binary
binlift run /path/to/binary

# Full listings with a python skeleton
binlift run --full -t python /path/to/binary
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		absPath, err := resolveInput(args[0])
		if err != nil {
			return err
		}

		a, target, err := buildAnalyzer(cmd)
		if err != nil {
			return err
		}

		os.Setenv("BINLIFT_NO_COLOR", "1")
		slog.Debug("Running analysis", "file", absPath, "full", full)
		return runReport(a, absPath, target, full)
	},
}

func init() {
	runCmd.Flags().BoolP("full", "f", false, "Show full disassembly listings")
}
