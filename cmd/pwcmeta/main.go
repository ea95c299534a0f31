package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/pwcmeta/am"
	"github.com/teranos/pwcmeta/cmd/pwcmeta/commands"
	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/logger"
)

var rootCmd = &cobra.Command{
	Use:   "pwcmeta",
	Short: "pwcmeta - repository metadata for papers with code",
	Long: `pwcmeta - collect repository metadata for papers with code.

The papers-with-code link catalog is filtered to GitHub and GitLab
repositories, each repository is described as schema.org statements, and
the deduplicated statements are exported as tables.

Available commands:
  retrieve - Download and filter the paper catalog
  ix       - Extract repository metadata into the canonical store
  so       - Export the canonical store as CSV tables
  run      - retrieve, ix run and so enhance in sequence
  am       - Show and validate configuration ("I am")

Examples:
  pwcmeta retrieve              # Download catalog, keep GitHub/GitLab links
  pwcmeta ix run -v             # Extract metadata with info logging
  pwcmeta ix aggregate          # Rebuild the canonical store from a kept merged store
  pwcmeta so enhance            # Join with papers and add stars/forks
  pwcmeta am show --format yaml # Show effective configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			am.UseConfigFile(path)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "JSON logs and JSON command output")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (overrides the search path)")

	rootCmd.AddCommand(commands.RetrieveCmd)
	rootCmd.AddCommand(commands.IxCmd)
	rootCmd.AddCommand(commands.SoCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

// Exit codes. Invalid flags or configuration exit with 2 so scripts can
// tell them apart from failed runs.
const (
	exitFailure      = 1
	exitInvalidUsage = 2
)

func exitCode(err error) int {
	if errors.IsInvalidRequestError(err) {
		return exitInvalidUsage
	}
	return exitFailure
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
