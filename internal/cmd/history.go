package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/masahif/packfetch/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the catalog",
	Long: `history prints the runs recorded in the SQLite catalog, newest first.
With --run it lists the items of a single run instead.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 10, "Number of runs to show")
	historyCmd.Flags().String("run", "", "Show the items of this run")
	historyCmd.Flags().String("status", "", "Filter items by status: skipped, downloaded, failed")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	path := viper.GetString("catalog_path")
	if path == "" {
		return fmt.Errorf("no catalog configured: set --catalog or PF_CATALOG_PATH")
	}

	catalog, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = catalog.Close() }()

	out := cmd.OutOrStdout()
	if runID, _ := cmd.Flags().GetString("run"); runID != "" {
		status, _ := cmd.Flags().GetString("status")
		records, err := catalog.Items(runID, status)
		if err != nil {
			return err
		}
		return printItems(out, records)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := catalog.RecentRuns(limit)
	if err != nil {
		return err
	}
	return printRuns(out, runs)
}

func printRuns(out io.Writer, runs []storage.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tPAGES\tFOUND\tSKIPPED\tOK\tFAILED\tBYTES\tDESTINATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			r.Totals.Pages,
			r.Totals.Discovered,
			r.Totals.Skipped,
			r.Totals.Succeeded,
			r.Totals.Failed,
			humanize.Bytes(uint64(max(r.Totals.BytesWritten, 0))),
			r.Destination,
		)
	}
	return w.Flush()
}

func printItems(out io.Writer, records []storage.ItemRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "No items recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSTATUS\tSIZE\tWRITTEN\tTITLE")
	for _, r := range records {
		written := "-"
		if r.Status == storage.StatusDownloaded {
			written = humanize.Bytes(uint64(max(r.BytesWritten, 0)))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.FileName, r.Status, r.DeclaredSize, written, r.Title)
	}
	return w.Flush()
}
