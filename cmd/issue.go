package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/campusreport/internal/issues"
	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/output"
	"github.com/joescharf/campusreport/internal/store"
)

var (
	issueName       string
	issueEmail      string
	issueRoom       string
	issueTypes      []string
	issueImportance string
	issueComment    string
	issueStatus     string
	issueTypeFilter string
	issueImpFilter  string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Submit and manage facility issues",
	Long:  "Submit facility issues, list them, and override their status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new issue",
	Long: `Submit a new facility issue. The submitter receives a confirmation email.

Pass --type once per category; labels must match exactly, e.g.
  --type "Lighting issues" --type "Heating, ventilation or air conditioning issues"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSubmitRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long:    "List issues ordered by issue type, then importance from high to low.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id> <pending|in_progress|resolved>",
	Short: "Override the status of an issue",
	Long:  "Override the status of an issue. Moving an issue to resolved emails the submitter.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatusRun(args[0], args[1])
	},
}

func init() {
	issueSubmitCmd.Flags().StringVar(&issueName, "name", "", "Submitter name (required)")
	issueSubmitCmd.Flags().StringVar(&issueEmail, "email", "", "Submitter institution email (required)")
	issueSubmitCmd.Flags().StringVar(&issueRoom, "room", "", "Room number, e.g. 'A 09-001' (required)")
	issueSubmitCmd.Flags().StringArrayVar(&issueTypes, "type", nil, "Issue type label (repeatable)")
	issueSubmitCmd.Flags().StringVar(&issueImportance, "importance", "low", "Importance: low, medium, high")
	issueSubmitCmd.Flags().StringVar(&issueComment, "comment", "", "Problem description (required)")

	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: pending, in_progress, resolved")
	issueListCmd.Flags().StringVar(&issueImpFilter, "importance", "", "Filter by importance: low, medium, high")
	issueListCmd.Flags().StringVar(&issueTypeFilter, "type", "", "Filter by issue type label")

	issueCmd.AddCommand(issueSubmitCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueStatusCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueSubmitRun() error {
	svc, err := getIssueService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	sub := issues.Submission{
		Name:       issueName,
		Email:      issueEmail,
		RoomNumber: issueRoom,
		IssueTypes: issueTypes,
		Importance: issueImportance,
		Comment:    issueComment,
	}

	if dryRun {
		issue, err := svc.Validate(sub)
		if err != nil {
			return describeError(err)
		}
		ui.DryRunMsg("Would submit issue: %s [%s] in %s", issue.IssueTypeList(), issue.Importance, issue.RoomNumber)
		return nil
	}

	issue, err := svc.Create(ctx, sub)
	if err != nil && !issues.IsNotificationOnly(err) {
		return describeError(err)
	}

	ui.Success("Submitted issue %s: %s in %s", output.Cyan(fmt.Sprintf("#%d", issue.ID)), issue.IssueTypeList(), issue.RoomNumber)
	if err != nil {
		ui.Warning("Confirmation email failed: %v", err)
	} else {
		ui.VerboseLog("Confirmation sent to %s", issue.SubmitterEmail)
	}
	return nil
}

func issueListRun() error {
	svc, err := getIssueService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	filter := store.IssueListFilter{IssueType: issueTypeFilter}
	if issueTypeFilter != "" && !models.IsCategory(issueTypeFilter) {
		return fmt.Errorf("unknown issue type: %s", issueTypeFilter)
	}
	if issueStatus != "" {
		st, ok := models.ParseIssueStatus(issueStatus)
		if !ok {
			return fmt.Errorf("invalid status: %s (use: pending, in_progress, resolved)", issueStatus)
		}
		filter.Status = st
	}
	if issueImpFilter != "" {
		imp, ok := models.ParseImportance(issueImpFilter)
		if !ok {
			return fmt.Errorf("invalid importance: %s (use: low, medium, high)", issueImpFilter)
		}
		filter.Importance = imp
	}

	list, err := svc.List(ctx, filter)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Issue Type", "Room", "Importance", "Status", "Submitted", "Submitter"})
	for _, issue := range list {
		_ = table.Append([]string{
			fmt.Sprintf("%d", issue.ID),
			issue.IssueTypeList(),
			issue.RoomNumber,
			output.ImportanceColor(string(issue.Importance)),
			output.StatusColor(string(issue.Status)),
			issue.SubmittedAt.Format("2006-01-02 15:04"),
			issue.SubmitterEmail,
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(ref string) error {
	id, err := parseIssueID(ref)
	if err != nil {
		return err
	}
	svc, err := getIssueService()
	if err != nil {
		return err
	}

	issue, err := svc.Get(context.Background(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(fmt.Sprintf("#%d", issue.ID)), issue.IssueTypeList())
	fmt.Fprintf(ui.Out, "  Room:       %s\n", issue.RoomNumber)
	fmt.Fprintf(ui.Out, "  Importance: %s\n", output.ImportanceColor(string(issue.Importance)))
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Submitter:  %s <%s>\n", issue.Name, issue.SubmitterEmail)
	fmt.Fprintf(ui.Out, "  Comment:    %s\n", issue.Comment)
	fmt.Fprintf(ui.Out, "  Submitted:  %s\n", issue.SubmittedAt.Format(time.RFC3339))
	if !issue.UpdatedAt.Equal(issue.SubmittedAt) {
		fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func issueStatusRun(ref, rawStatus string) error {
	id, err := parseIssueID(ref)
	if err != nil {
		return err
	}
	status, ok := models.ParseIssueStatus(rawStatus)
	if !ok {
		return fmt.Errorf("invalid status: %s (use: pending, in_progress, resolved)", rawStatus)
	}

	svc, err := getIssueService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		issue, err := svc.Get(ctx, id)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would change issue #%d from %s to %s", id, issue.Status.Label(), status.Label())
		return nil
	}

	issue, err := svc.UpdateStatus(ctx, id, status)
	if err != nil && !issues.IsNotificationOnly(err) {
		return describeError(err)
	}

	ui.Success("Issue %s is now %s", output.Cyan(fmt.Sprintf("#%d", issue.ID)), output.StatusColor(string(issue.Status)))
	if err != nil {
		ui.Warning("Resolution email failed: %v", err)
	}
	return nil
}

// parseIssueID accepts "12" or "#12".
func parseIssueID(ref string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(ref), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid issue id: %s", ref)
	}
	return id, nil
}

// describeError prints each field of a validation error and returns a short
// summary; other errors pass through unchanged.
func describeError(err error) error {
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	for _, f := range verr.Fields {
		ui.Error("%s: %s", f.Field, f.Message)
	}
	return fmt.Errorf("invalid input (%d field(s))", len(verr.Fields))
}
