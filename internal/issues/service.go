// Package issues implements the issue lifecycle: validated submission,
// listing, and explicit status overrides with submitter notifications.
package issues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/notify"
	"github.com/joescharf/campusreport/internal/store"
	"github.com/joescharf/campusreport/internal/validate"
)

// MaxCommentLength bounds the problem description, in characters.
const MaxCommentLength = 500

// Submission is the raw input of the issue form.
type Submission struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	RoomNumber string   `json:"room_number"`
	IssueTypes []string `json:"issue_types"`
	Importance string   `json:"importance"`
	Comment    string   `json:"comment"`
}

// Service coordinates validation, persistence and notification.
type Service struct {
	store    store.Store
	notifier notify.Notifier
	rules    *validate.Rules
	loc      *time.Location
	now      func() time.Time
}

// NewService creates an issue service. Timestamps are recorded in loc; a nil
// notifier disables emails.
func NewService(s store.Store, n notify.Notifier, rules *validate.Rules, loc *time.Location) *Service {
	if n == nil {
		n = notify.LogNotifier{}
	}
	if rules == nil {
		rules = validate.NewRules("")
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: s, notifier: n, rules: rules, loc: loc, now: time.Now}
}

// Rules returns the validation rules in effect.
func (s *Service) Rules() *validate.Rules { return s.rules }

// Location returns the campus time zone.
func (s *Service) Location() *time.Location { return s.loc }

// Validate checks a submission and returns the normalized issue it would
// create. Every failing field is reported in one *models.ValidationError.
func (s *Service) Validate(sub Submission) (*models.Issue, error) {
	verr := &models.ValidationError{}

	name := strings.TrimSpace(sub.Name)
	email := strings.TrimSpace(sub.Email)
	room := strings.TrimSpace(sub.RoomNumber)
	comment := strings.TrimSpace(sub.Comment)

	if name == "" {
		verr.Add("name", "is required")
	}

	switch {
	case email == "":
		verr.Add("email", "is required")
	case !s.rules.Email(email):
		verr.Add("email", fmt.Sprintf("must be a %s or student.%s address", s.rules.Domain, s.rules.Domain))
	}

	switch {
	case room == "":
		verr.Add("room_number", "is required")
	case !s.rules.RoomNumber(room):
		verr.Add("room_number", "must have the format 'A 09-001'")
	}

	types, unknown := models.NormalizeIssueTypes(sub.IssueTypes)
	switch {
	case len(unknown) > 0:
		verr.Add("issue_types", "unknown issue type: "+strings.Join(unknown, ", "))
	case len(types) == 0:
		verr.Add("issue_types", "select at least one issue type")
	}

	importance := models.ImportanceLow
	if strings.TrimSpace(sub.Importance) != "" {
		imp, ok := models.ParseImportance(sub.Importance)
		if ok {
			importance = imp
		} else {
			verr.Add("importance", "must be Low, Medium or High")
		}
	}

	switch {
	case comment == "":
		verr.Add("comment", "is required")
	case utf8.RuneCountInString(comment) > MaxCommentLength:
		verr.Add("comment", fmt.Sprintf("must be at most %d characters", MaxCommentLength))
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	return &models.Issue{
		Name:           name,
		SubmitterEmail: email,
		IssueTypes:     types,
		RoomNumber:     room,
		Importance:     importance,
		Comment:        comment,
		Status:         models.IssueStatusPending,
	}, nil
}

// Create validates and stores a submission, then sends the "issue received"
// email. If only the email fails, the stored issue is returned together with
// a *models.NotificationError.
func (s *Service) Create(ctx context.Context, sub Submission) (*models.Issue, error) {
	issue, err := s.Validate(sub)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	issue.SubmittedAt = now
	issue.UpdatedAt = now
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}
	slog.Info("issue created", "id", issue.ID, "types", issue.IssueTypeList(), "room", issue.RoomNumber)

	if err := s.notifier.IssueReceived(ctx, issue); err != nil {
		slog.Warn("confirmation email failed", "id", issue.ID, "error", err)
		return issue, asNotificationError(models.NotificationReceived, issue, err)
	}
	return issue, nil
}

// Import stores a previously recorded issue, keeping its status and
// timestamps. The submission is validated like a new one; no email is sent.
// A zero submittedAt means now, a zero updatedAt means submittedAt.
func (s *Service) Import(ctx context.Context, sub Submission, status models.IssueStatus, submittedAt, updatedAt time.Time) (*models.Issue, error) {
	issue, err := s.Validate(sub)
	if status == "" {
		status = models.IssueStatusPending
	}
	if !status.Valid() {
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			verr = &models.ValidationError{}
		}
		verr.Add("status", "must be pending, in_progress or resolved")
		return nil, verr
	}
	if err != nil {
		return nil, err
	}

	if submittedAt.IsZero() {
		submittedAt = s.now()
	}
	if updatedAt.IsZero() || updatedAt.Before(submittedAt) {
		updatedAt = submittedAt
	}
	issue.Status = status
	issue.SubmittedAt = submittedAt.In(s.loc)
	issue.UpdatedAt = updatedAt.In(s.loc)
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}
	slog.Debug("issue imported", "id", issue.ID, "status", issue.Status)
	return issue, nil
}

// Get returns one issue or a *models.NotFoundError.
func (s *Service) Get(ctx context.Context, id int64) (*models.Issue, error) {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	s.localize(issue)
	return issue, nil
}

// List returns issues ordered by issue type, then importance from high to low.
func (s *Service) List(ctx context.Context, filter store.IssueListFilter) ([]*models.Issue, error) {
	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, i := range issues {
		s.localize(i)
	}
	return issues, nil
}

// UpdateStatus overrides an issue's status and refreshes its timestamp. A
// change into Resolved sends the "issue resolved" email; an email failure is
// returned as *models.NotificationError alongside the updated issue.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status models.IssueStatus) (*models.Issue, error) {
	if !status.Valid() {
		verr := &models.ValidationError{}
		verr.Add("status", "must be Pending, In Progress or Resolved")
		return nil, verr
	}

	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := issue.Status

	now := s.now().In(s.loc)
	if err := s.store.UpdateIssueStatus(ctx, id, status, now); err != nil {
		return nil, err
	}
	issue.Status = status
	issue.UpdatedAt = now
	s.localize(issue)
	slog.Info("issue status updated", "id", id, "from", previous, "to", status)

	if status == models.IssueStatusResolved && previous != models.IssueStatusResolved {
		if err := s.notifier.IssueResolved(ctx, issue); err != nil {
			slog.Warn("resolution email failed", "id", id, "error", err)
			return issue, asNotificationError(models.NotificationResolved, issue, err)
		}
	}
	return issue, nil
}

func (s *Service) localize(issue *models.Issue) {
	issue.SubmittedAt = issue.SubmittedAt.In(s.loc)
	issue.UpdatedAt = issue.UpdatedAt.In(s.loc)
}

func asNotificationError(kind models.NotificationKind, issue *models.Issue, err error) error {
	var ne *models.NotificationError
	if errors.As(err, &ne) {
		return ne
	}
	return &models.NotificationError{Kind: kind, Recipient: issue.SubmitterEmail, Err: err}
}

// IsNotificationOnly reports whether err only concerns a failed email, meaning
// the store write went through.
func IsNotificationOnly(err error) bool {
	var ne *models.NotificationError
	return errors.As(err, &ne)
}
