package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/campusreport/internal/issues"
	"github.com/joescharf/campusreport/internal/models"
)

var importFormat string

var issueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import issues from a JSON or CSV export",
	Long: `Import issues written by 'campusreport export --format json|csv'.

Every record is validated like a new submission. Status and timestamps are
kept and no emails are sent. Invalid records are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(args[0])
	},
}

func init() {
	issueImportCmd.Flags().StringVar(&importFormat, "format", "", "Input format: json, csv (default: from file extension)")
	issueCmd.AddCommand(issueImportCmd)
}

// importRecord is one issue read from an export file.
type importRecord struct {
	Submission  issues.Submission
	Status      models.IssueStatus
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

func issueImportRun(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	defer func() { _ = f.Close() }()

	format := importFormat
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), ".")
	}

	var records []importRecord
	switch format {
	case "json":
		records, err = readJSONRecords(f)
	case "csv":
		records, err = readCSVRecords(f)
	default:
		return fmt.Errorf("unknown format: %q (use: json, csv)", format)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	if len(records) == 0 {
		ui.Info("No issues found in %s.", file)
		return nil
	}

	svc, err := getIssueService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var imported, failed int
	for i, rec := range records {
		if dryRun {
			_, err = svc.Validate(rec.Submission)
		} else {
			_, err = svc.Import(ctx, rec.Submission, rec.Status, rec.SubmittedAt, rec.UpdatedAt)
		}
		if err != nil {
			failed++
			reportImportError(i+1, err)
			continue
		}
		imported++
	}

	if dryRun {
		ui.DryRunMsg("Would import %d of %d issues", imported, len(records))
	} else {
		ui.Success("Imported %d of %d issues", imported, len(records))
	}
	if failed > 0 {
		return fmt.Errorf("%d record(s) skipped", failed)
	}
	return nil
}

func reportImportError(n int, err error) {
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		ui.Error("record %d: %v", n, err)
		return
	}
	for _, f := range verr.Fields {
		ui.Error("record %d: %s: %s", n, f.Field, f.Message)
	}
}

func readJSONRecords(r io.Reader) ([]importRecord, error) {
	var list []*models.Issue
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, err
	}
	records := make([]importRecord, 0, len(list))
	for n, i := range list {
		if i == nil {
			return nil, fmt.Errorf("record %d: null", n+1)
		}
		records = append(records, importRecord{
			Submission: issues.Submission{
				Name:       i.Name,
				Email:      i.SubmitterEmail,
				RoomNumber: i.RoomNumber,
				IssueTypes: i.IssueTypes,
				Importance: string(i.Importance),
				Comment:    i.Comment,
			},
			Status:      i.Status,
			SubmittedAt: i.SubmittedAt,
			UpdatedAt:   i.UpdatedAt,
		})
	}
	return records, nil
}

// csvColumns are the export headers read back on import.
var csvColumns = []string{"Name", "Email", "Issue Type", "Room", "Importance", "Comment", "Status", "Submitted", "Updated"}

func readCSVRecords(r io.Reader) ([]importRecord, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, name := range csvColumns[:6] {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	get := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	records := make([]importRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rec := importRecord{
			Submission: issues.Submission{
				Name:       get(row, "Name"),
				Email:      get(row, "Email"),
				RoomNumber: get(row, "Room"),
				IssueTypes: models.SplitIssueTypes(get(row, "Issue Type")),
				Importance: get(row, "Importance"),
				Comment:    get(row, "Comment"),
			},
		}
		if raw := get(row, "Status"); raw != "" {
			// Unknown values fall through to validation in Import.
			st, _ := models.ParseIssueStatus(raw)
			rec.Status = st
		}
		for _, ts := range []struct {
			column string
			dst    *time.Time
		}{{"Submitted", &rec.SubmittedAt}, {"Updated", &rec.UpdatedAt}} {
			raw := get(row, ts.column)
			if raw == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", n+2, ts.column, err)
			}
			*ts.dst = t
		}
		records = append(records, rec)
	}
	return records, nil
}
