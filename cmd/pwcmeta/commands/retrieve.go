package commands

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/am"
	"github.com/teranos/pwcmeta/catalog"
	"github.com/teranos/pwcmeta/display"
	"github.com/teranos/pwcmeta/logger"
	"github.com/teranos/pwcmeta/sym"
)

// RetrieveCmd downloads and filters the paper catalog
var RetrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: sym.Short("retrieve", "Download the paper catalog and keep GitHub/GitLab links"),
	Long: `Download the papers-with-code link catalog (once; an existing file is
reused), keep the first max_papers entries and of those the ones whose
repository is on github.com or gitlab.com, and save them as the filtered
catalog that 'pwcmeta ix run' reads.`,
	RunE: runRetrieve,
}

func init() {
	RetrieveCmd.Flags().Int("max-papers", -1, "Override retrieve.max_papers (0 = all)")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("max-papers"); n >= 0 {
		cfg.Retrieve.MaxPapers = n
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	papers, err := retrievePapers(ctx, cfg, logger.ComponentLogger("catalog"))
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{
			"papers": len(papers),
			"path":   cfg.Location.FilteredPapers,
		})
	}
	pterm.Success.Printf("%d papers with GitHub/GitLab repositories saved to %s\n", len(papers), cfg.Location.FilteredPapers)
	return nil
}

// retrievePapers downloads the catalog if needed, filters it and saves the
// result.
func retrievePapers(ctx context.Context, cfg *am.Config, log *zap.SugaredLogger) ([]catalog.Paper, error) {
	if _, err := catalog.Download(ctx, cfg.Location.CatalogURL, cfg.Location.AllPapers, log); err != nil {
		return nil, err
	}
	all, err := catalog.ReadPapers(cfg.Location.AllPapers)
	if err != nil {
		return nil, err
	}
	papers := catalog.Filter(all, cfg.Retrieve.MaxPapers)
	log.Infow("Filtered catalog", logger.FieldTotalCount, len(all), logger.FieldCount, len(papers))

	if err := catalog.SavePapers(cfg.Location.FilteredPapers, papers); err != nil {
		return nil, err
	}
	return papers, nil
}
