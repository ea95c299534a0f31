package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pwcmeta/am"
	"github.com/teranos/pwcmeta/catalog"
	"github.com/teranos/pwcmeta/display"
	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/ixgest"
	"github.com/teranos/pwcmeta/logger"
	"github.com/teranos/pwcmeta/pulse"
	"github.com/teranos/pwcmeta/sym"
)

// IxCmd groups the extraction commands
var IxCmd = &cobra.Command{
	Use:   "ix",
	Short: sym.Short("ix", "Extract repository metadata into the canonical store"),
	Long: `Extract repository metadata into the canonical store.

Each repository of the filtered catalog is fetched by a bounded worker pool,
written to its own artifact, appended to the merged store and finally
deduplicated into the canonical store (sorted N-Triples).

Examples:
  pwcmeta ix run                          # Use the configured filtered catalog
  pwcmeta ix run --workers 8 --batch-size 50
  pwcmeta ix run --report run.yaml        # Also write the run report
  pwcmeta ix aggregate                    # Re-aggregate a merged store kept by a cancelled run`,
}

var ixRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the extraction pipeline",
	RunE:  runIxRun,
}

var ixAggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Rebuild the canonical store from a merged store",
	RunE:  runIxAggregate,
}

func init() {
	ixRunCmd.Flags().String("input", "", "Filtered catalog (default location.filtered_papers)")
	ixRunCmd.Flags().Int("workers", 0, "Override extract.workers")
	ixRunCmd.Flags().Int("batch-size", 0, "Override extract.batch_size")
	ixRunCmd.Flags().String("report", "", "Write the run report as YAML to this path")

	ixAggregateCmd.Flags().String("merged", "", "Merged store (default location.metadata + extract.merged_suffix)")
	ixAggregateCmd.Flags().String("output", "", "Canonical store (default location.metadata)")
	ixAggregateCmd.Flags().Bool("keep", false, "Keep the merged store after a successful aggregation")

	IxCmd.AddCommand(ixRunCmd)
	IxCmd.AddCommand(ixAggregateCmd)
}

func runIxRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		cfg.Extract.Workers = n
	}
	if n, _ := cmd.Flags().GetInt("batch-size"); n > 0 {
		cfg.Extract.BatchSize = n
	}
	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		input = cfg.Location.FilteredPapers
	}
	reportPath, _ := cmd.Flags().GetString("report")

	ctx, cancel := signalContext(cmd)
	defer cancel()

	papers, err := catalog.ReadPapers(input)
	if err != nil {
		return errors.WithHint(err, "run 'pwcmeta retrieve' first")
	}

	report, err := extract(ctx, cmd, cfg, catalog.WorkItems(papers), reportPath)
	if report != nil {
		if rerr := renderReport(cmd, report); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// extract runs the pipeline over items and writes metrics and the report.
// The report is returned even when the run fails.
func extract(ctx context.Context, cmd *cobra.Command, cfg *am.Config, items []ixgest.WorkItem, reportPath string) (*ixgest.Report, error) {
	client, err := newFetchClient(cmd, cfg, logger.ComponentLogger("fetch"))
	if err != nil {
		return nil, err
	}
	metrics := pulse.NewMetrics()
	p, _, err := ixgest.New(cfg, client, metrics, logger.ComponentLogger("pulse"))
	if err != nil {
		return nil, err
	}

	var spinner *pterm.SpinnerPrinter
	if !display.ShouldOutputJSON(cmd) {
		spinner, _ = pterm.DefaultSpinner.Start(fmt.Sprintf("Extracting metadata for %d repositories...", len(items)))
		done := 0
		p.OnResult = func(ixgest.Result) {
			done++
			spinner.UpdateText(fmt.Sprintf("Extracting metadata: %d/%d", done, len(items)))
		}
	}

	report, runErr := p.Run(ctx, items)
	if spinner != nil {
		if runErr != nil {
			spinner.Fail("Extraction stopped")
		} else {
			spinner.Success("Extraction complete")
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warnw("Failed to write metrics textfile", logger.FieldPath, cfg.Metrics.Textfile, logger.FieldError, err)
		}
	}
	if reportPath != "" && report != nil {
		if err := report.WriteYAML(reportPath); err != nil {
			logger.Warnw("Failed to write run report", logger.FieldPath, reportPath, logger.FieldError, err)
		}
	}
	return report, runErr
}

func renderReport(cmd *cobra.Command, r *ixgest.Report) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), r)
	}
	return display.Table(cmd.OutOrStdout(), []string{"Run " + r.RunID[:min(8, len(r.RunID))], "Value"}, reportRows(r))
}

func reportRows(r *ixgest.Report) [][]string {
	rows := [][]string{
		{"items", strconv.Itoa(r.Items)},
		{"succeeded", strconv.Itoa(r.Succeeded)},
		{"failed", strconv.Itoa(r.Failed)},
	}
	kinds := make([]string, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		rows = append(rows, []string{"  " + k, strconv.Itoa(r.ByKind[k])})
	}
	rows = append(rows,
		[]string{"skipped", strconv.Itoa(r.Skipped)},
		[]string{"statements", humanize.Comma(int64(r.Statements))},
		[]string{"unique statements", humanize.Comma(int64(r.UniqueStatements))},
		[]string{"partial lines", strconv.Itoa(r.PartialLines)},
		[]string{"ingested", humanize.IBytes(uint64(r.BytesIngested))},
		[]string{"duration", r.Duration.Round(time.Millisecond).String()},
	)
	if lost := r.Lost(); lost > 0 {
		rows = append(rows, []string{"lost artifacts", strconv.Itoa(lost)})
	}
	if r.CanonicalStore != "" {
		rows = append(rows, []string{"canonical store", r.CanonicalStore})
	}
	if r.MergedStore != "" {
		rows = append(rows, []string{"merged store (kept)", r.MergedStore})
	}
	return rows
}

func runIxAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	merged, _ := cmd.Flags().GetString("merged")
	if merged == "" {
		merged = cfg.MergedPath()
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = cfg.Location.Metadata
	}
	keep, _ := cmd.Flags().GetBool("keep")

	agg := &ixgest.Aggregator{
		MergedPath:    merged,
		CanonicalPath: output,
		Logger:        logger.ComponentLogger("aggregate"),
	}
	stats, err := agg.Aggregate(ixgest.UnknownSize)
	if err != nil {
		return err
	}
	if !keep {
		if err := os.Remove(merged); err != nil {
			logger.Warnw("Failed to remove merged store", logger.FieldPath, merged, logger.FieldError, err)
		}
	}
	return renderAggregate(cmd.OutOrStdout(), cmd, output, stats)
}

func renderAggregate(w io.Writer, cmd *cobra.Command, output string, s ixgest.AggregateStats) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(w, map[string]interface{}{
			"canonical_store": output,
			"bytes":           s.Bytes,
			"statements":      s.Statements,
			"unique":          s.Unique,
			"partial_lines":   s.PartialLines,
		})
	}
	return display.Table(w, []string{"Aggregate", "Value"}, [][]string{
		{"canonical store", output},
		{"merged bytes", humanize.IBytes(uint64(s.Bytes))},
		{"statements", humanize.Comma(int64(s.Statements))},
		{"unique", humanize.Comma(int64(s.Unique))},
		{"partial lines", strconv.Itoa(s.PartialLines)},
	})
}
