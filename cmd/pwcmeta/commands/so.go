package commands

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pwcmeta/am"
	"github.com/teranos/pwcmeta/catalog"
	"github.com/teranos/pwcmeta/display"
	"github.com/teranos/pwcmeta/logger"
	"github.com/teranos/pwcmeta/so"
	"github.com/teranos/pwcmeta/sym"
)

// SoCmd groups the table export commands
var SoCmd = &cobra.Command{
	Use:   "so",
	Short: sym.Short("so", "Export the canonical store as CSV tables"),
	Long: `Export the canonical store as CSV tables.

The canonical store is loaded into a SQLite statement table and queried for
one row per repository (url, lang, contributors, license, created_at,
updated_at). 'enhance' joins those rows with the filtered catalog and adds
star and fork counts.

Examples:
  pwcmeta so export                  # Write location.meta_table
  pwcmeta so enhance                 # Write location.combined
  pwcmeta so export --db meta.db     # Keep the statement table on disk`,
}

var soExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the repository metadata table",
	RunE:  runSoExport,
}

var soEnhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Join metadata with papers and add popularity",
	RunE:  runSoEnhance,
}

func init() {
	for _, c := range []*cobra.Command{soExportCmd, soEnhanceCmd} {
		c.Flags().String("db", "", "SQLite statement table (default location.table_db)")
		c.Flags().String("output", "", "CSV output path")
	}
	SoCmd.AddCommand(soExportCmd)
	SoCmd.AddCommand(soEnhanceCmd)
}

func flagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}

// metaRows loads the canonical store and runs the metadata query.
func metaRows(ctx context.Context, cfg *am.Config, dbPath string) ([]so.MetaRow, error) {
	store, err := so.OpenTableStore(dbPath, logger.ComponentLogger("so"))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if _, err := store.LoadStatements(ctx, cfg.Location.Metadata); err != nil {
		return nil, err
	}
	return store.MetaRows(ctx)
}

func runSoExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	rows, err := metaRows(ctx, cfg, flagOr(cmd, "db", cfg.Location.TableDB))
	if err != nil {
		return err
	}
	output := flagOr(cmd, "output", cfg.Location.MetaTable)
	if err := writeMetaCSV(output, rows); err != nil {
		return err
	}
	return reportWritten(cmd, output, len(rows))
}

func runSoEnhance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	n, output, err := enhance(ctx, cmd, cfg, flagOr(cmd, "db", cfg.Location.TableDB), flagOr(cmd, "output", cfg.Location.Combined))
	if err != nil {
		return err
	}
	return reportWritten(cmd, output, n)
}

// enhance writes the popularity-enriched join to output and returns the
// number of rows.
func enhance(ctx context.Context, cmd *cobra.Command, cfg *am.Config, dbPath, output string) (int, string, error) {
	rows, err := metaRows(ctx, cfg, dbPath)
	if err != nil {
		return 0, "", err
	}
	papers, err := catalog.ReadPapers(cfg.Location.FilteredPapers)
	if err != nil {
		return 0, "", err
	}

	client, err := newFetchClient(cmd, cfg, logger.ComponentLogger("fetch"))
	if err != nil {
		return 0, "", err
	}
	e, err := so.NewEnhancer(client, cfg.Enhance.Workers, cfg.Enhance.CacheSize, logger.ComponentLogger("enhance"))
	if err != nil {
		return 0, "", err
	}
	enhanced, err := e.Enhance(ctx, rows, papers)
	if err != nil {
		return 0, "", err
	}

	f, err := createFile(output)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()
	if err := so.WriteEnhancedCSV(f, enhanced); err != nil {
		return 0, "", err
	}
	return len(enhanced), output, f.Close()
}

func writeMetaCSV(path string, rows []so.MetaRow) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := so.WriteCSV(f, rows); err != nil {
		return err
	}
	return f.Close()
}

func reportWritten(cmd *cobra.Command, path string, rows int) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{"path": path, "rows": rows})
	}
	pterm.Success.Printf("%d rows written to %s\n", rows, path)
	return nil
}
