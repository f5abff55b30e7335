package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/store"
)

var (
	reportFormat string
	exportStatus string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues as JSON, CSV, Markdown or HTML",
	Long:  "Export all issues, in list order, in various formats.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&reportFormat, "format", "json", "Output format: json, csv, markdown, html")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Only export issues with this status")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	svc, err := getIssueService()
	if err != nil {
		return err
	}

	var filter store.IssueListFilter
	if exportStatus != "" {
		st, ok := models.ParseIssueStatus(exportStatus)
		if !ok {
			return fmt.Errorf("invalid status: %s (use: pending, in_progress, resolved)", exportStatus)
		}
		filter.Status = st
	}

	list, err := svc.List(context.Background(), filter)
	if err != nil {
		return err
	}
	return exportIssues(list)
}

func exportIssues(list []*models.Issue) error {
	switch reportFormat {
	case "json":
		if list == nil {
			list = []*models.Issue{}
		}
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Name", "Email", "Issue Type", "Room", "Importance", "Comment", "Status", "Submitted", "Updated"})
		for _, i := range list {
			_ = w.Write([]string{
				strconv.FormatInt(i.ID, 10), i.Name, i.SubmitterEmail, i.IssueTypeList(), i.RoomNumber,
				i.Importance.Label(), i.Comment, i.Status.Label(),
				i.SubmittedAt.Format(time.RFC3339), i.UpdatedAt.Format(time.RFC3339),
			})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		writeMarkdown(ui.Out, list)
		return nil
	case "html":
		var md bytes.Buffer
		writeMarkdown(&md, list)
		return goldmark.New(goldmark.WithExtensions(extension.GFM)).Convert(md.Bytes(), ui.Out)
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown, html)", reportFormat)
	}
}

func writeMarkdown(w io.Writer, list []*models.Issue) {
	fmt.Fprintln(w, "# Issues")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| # | Issue Type | Room | Importance | Status | Submitted | Comment |")
	fmt.Fprintln(w, "|---|------------|------|------------|--------|-----------|---------|")
	for _, i := range list {
		fmt.Fprintf(w, "| %d | %s | %s | %s | %s | %s | %s |\n",
			i.ID, i.IssueTypeList(), i.RoomNumber, i.Importance.Label(), i.Status.Label(),
			i.SubmittedAt.Format("2006-01-02 15:04"), markdownCell(i.Comment))
	}
}

// markdownCell keeps free text on one table row.
func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
