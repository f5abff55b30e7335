package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/campusreport/internal/output"
	"github.com/joescharf/campusreport/internal/stats"
	"github.com/joescharf/campusreport/internal/store"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dashboard statistics",
	Long: `Show the dashboard aggregates: total issues, issues by type, issues
submitted per day, issues by importance, and the status distribution.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statsRun()
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print the aggregates as JSON")
	rootCmd.AddCommand(statsCmd)
}

const statsBarWidth = 30

func statsRun() error {
	svc, err := getIssueService()
	if err != nil {
		return err
	}

	list, err := svc.List(context.Background(), store.IssueListFilter{})
	if err != nil {
		return err
	}
	summary := stats.Summarize(list, svc.Location())

	if statsJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Fprintf(ui.Out, "Total issues: %s\n", output.Cyan(fmt.Sprintf("%d", summary.Total)))
	if summary.Total == 0 {
		return nil
	}

	printBuckets("Issues by issue type", summary.ByIssueType, false)
	printBuckets("Issues submitted per day", summary.ByDay, false)
	printBuckets("Issues by importance", summary.ByImportance, false)
	printBuckets("Distribution of statuses", summary.ByStatus, true)
	return nil
}

func printBuckets(title string, buckets []stats.Bucket, withPercent bool) {
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, title)
	peak := stats.Max(buckets)
	for _, b := range buckets {
		count := fmt.Sprintf("%d", b.Count)
		if withPercent {
			count = fmt.Sprintf("%d (%.1f%%)", b.Count, b.Percent)
		}
		fmt.Fprintf(ui.Out, "  %-20s %s %s\n", b.Label, output.Bar(b.Count, peak, statsBarWidth), count)
	}
}
