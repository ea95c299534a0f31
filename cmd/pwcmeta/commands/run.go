package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pwcmeta/catalog"
	"github.com/teranos/pwcmeta/display"
	"github.com/teranos/pwcmeta/logger"
)

// RunCmd runs every stage in order
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Retrieve, extract and enhance in one go",
	Long: `Run retrieve, ix run and so enhance in sequence with the configured
locations. A failed or cancelled extraction stops before enhancement.`,
	RunE: runAll,
}

func init() {
	RunCmd.Flags().String("report", "", "Write the extraction report as YAML to this path")
}

func runAll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reportPath, _ := cmd.Flags().GetString("report")

	ctx, cancel := signalContext(cmd)
	defer cancel()

	human := !display.ShouldOutputJSON(cmd)
	if human {
		pterm.DefaultSection.Println("Retrieve")
	}
	papers, err := retrievePapers(ctx, cfg, logger.ComponentLogger("catalog"))
	if err != nil {
		return err
	}

	if human {
		pterm.DefaultSection.Println("Extract")
	}
	report, err := extract(ctx, cmd, cfg, catalog.WorkItems(papers), reportPath)
	if report != nil {
		if rerr := renderReport(cmd, report); rerr != nil && err == nil {
			err = rerr
		}
	}
	if err != nil {
		return err
	}

	if human {
		pterm.DefaultSection.Println("Enhance")
	}
	n, output, err := enhance(ctx, cmd, cfg, cfg.Location.TableDB, cfg.Location.Combined)
	if err != nil {
		return err
	}
	return reportWritten(cmd, output, n)
}
