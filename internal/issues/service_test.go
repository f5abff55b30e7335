package issues

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/store"
	"github.com/joescharf/campusreport/internal/validate"
)

type fakeNotifier struct {
	received []int64
	resolved []int64
	err      error
}

func (f *fakeNotifier) IssueReceived(_ context.Context, issue *models.Issue) error {
	f.received = append(f.received, issue.ID)
	return f.err
}

func (f *fakeNotifier) IssueResolved(_ context.Context, issue *models.Issue) error {
	f.resolved = append(f.resolved, issue.ID)
	return f.err
}

func setupService(t *testing.T) (*Service, *fakeNotifier, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	n := &fakeNotifier{}
	svc := NewService(s, n, validate.NewRules("unisg.ch"), zurich)
	return svc, n, s
}

func validSubmission() Submission {
	return Submission{
		Name:       "Anna Muster",
		Email:      "anna.muster@student.unisg.ch",
		RoomNumber: "A 09-001",
		IssueTypes: []string{models.CategoryLighting},
		Importance: "High",
		Comment:    "The ceiling light flickers constantly.",
	}
}

func TestCreate_Valid(t *testing.T) {
	svc, n, _ := setupService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, models.IssueStatusPending, first.Status)
	assert.Equal(t, models.ImportanceHigh, first.Importance)
	assert.Equal(t, "Europe/Zurich", first.SubmittedAt.Location().String())

	second, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	assert.Equal(t, []int64{first.ID, second.ID}, n.received)
}

func TestCreate_NoIssueTypeRejected(t *testing.T) {
	svc, n, s := setupService(t)
	ctx := context.Background()

	sub := validSubmission()
	sub.IssueTypes = nil
	_, err := svc.Create(ctx, sub)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("issue_types"))

	issues, err := s.ListIssues(ctx, store.IssueListFilter{})
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Empty(t, n.received)
}

func TestValidate_Fields(t *testing.T) {
	svc, _, _ := setupService(t)

	tests := []struct {
		name   string
		mutate func(*Submission)
		field  string
	}{
		{"missing name", func(s *Submission) { s.Name = "  " }, "name"},
		{"missing email", func(s *Submission) { s.Email = "" }, "email"},
		{"foreign email", func(s *Submission) { s.Email = "a@gmail.com" }, "email"},
		{"missing room", func(s *Submission) { s.RoomNumber = "" }, "room_number"},
		{"malformed room", func(s *Submission) { s.RoomNumber = "A09-001" }, "room_number"},
		{"unknown type", func(s *Submission) { s.IssueTypes = []string{"Broken chair"} }, "issue_types"},
		{"bad importance", func(s *Submission) { s.Importance = "Urgent" }, "importance"},
		{"missing comment", func(s *Submission) { s.Comment = "" }, "comment"},
		{"long comment", func(s *Submission) { s.Comment = strings.Repeat("ä", MaxCommentLength+1) }, "comment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			tt.mutate(&sub)
			_, err := svc.Validate(sub)
			var verr *models.ValidationError
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
			assert.True(t, verr.Has(tt.field), "fields: %v", verr.Fields)
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	svc, _, _ := setupService(t)

	sub := validSubmission()
	sub.Name = "  Anna  "
	sub.Importance = ""
	sub.IssueTypes = []string{models.CategoryIT, models.CategoryLighting, models.CategoryIT}
	sub.Comment = strings.Repeat("x", MaxCommentLength)

	issue, err := svc.Validate(sub)
	require.NoError(t, err)
	assert.Equal(t, "Anna", issue.Name)
	assert.Equal(t, models.ImportanceLow, issue.Importance)
	assert.Equal(t, []string{models.CategoryLighting, models.CategoryIT}, issue.IssueTypes)
}

func TestCreate_NotificationFailureKeepsRecord(t *testing.T) {
	svc, n, _ := setupService(t)
	ctx := context.Background()
	n.err = errors.New("smtp down")

	issue, err := svc.Create(ctx, validSubmission())
	require.Error(t, err)
	assert.True(t, IsNotificationOnly(err))
	require.NotNil(t, issue)

	got, err := svc.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.Name, got.Name)
}

func TestUpdateStatus_OnlyTarget(t *testing.T) {
	svc, n, _ := setupService(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	a, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)
	b, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)

	later := base.Add(3 * time.Hour)
	svc.now = func() time.Time { return later }
	updated, err := svc.UpdateStatus(ctx, a.ID, models.IssueStatusResolved)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, updated.Status)
	assert.True(t, later.Equal(updated.UpdatedAt))
	assert.Equal(t, []int64{a.ID}, n.resolved)

	gotA, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, gotA.Status)
	assert.True(t, later.Equal(gotA.UpdatedAt))
	assert.True(t, base.Equal(gotA.SubmittedAt), "submission time is immutable")

	gotB, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusPending, gotB.Status)
	assert.True(t, base.Equal(gotB.UpdatedAt))
}

func TestUpdateStatus_ResolvedEmailOnlyOnTransition(t *testing.T) {
	svc, n, _ := setupService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, a.ID, models.IssueStatusInProgress)
	require.NoError(t, err)
	assert.Empty(t, n.resolved)

	_, err = svc.UpdateStatus(ctx, a.ID, models.IssueStatusResolved)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, a.ID, models.IssueStatusResolved)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, n.resolved)

	// Reopening is allowed; overrides are explicit and unrestricted.
	got, err := svc.UpdateStatus(ctx, a.ID, models.IssueStatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusPending, got.Status)
}

func TestUpdateStatus_UnknownID(t *testing.T) {
	svc, n, s := setupService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, a.ID+100, models.IssueStatusResolved)
	var nf *models.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Empty(t, n.resolved)

	issues, err := s.ListIssues(ctx, store.IssueListFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueStatusPending, issues[0].Status)
	assert.True(t, a.UpdatedAt.Equal(issues[0].UpdatedAt))
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, a.ID, models.IssueStatus("closed"))
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("status"))
}

func TestUpdateStatus_NotificationFailure(t *testing.T) {
	svc, n, _ := setupService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)

	n.err = errors.New("smtp down")
	updated, err := svc.UpdateStatus(ctx, a.ID, models.IssueStatusResolved)
	require.Error(t, err)
	assert.True(t, IsNotificationOnly(err))
	require.NotNil(t, updated)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, got.Status)
}

func TestList_Ordering(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	mk := func(cat string, imp string) int64 {
		sub := validSubmission()
		sub.IssueTypes = []string{cat}
		sub.Importance = imp
		issue, err := svc.Create(ctx, sub)
		require.NoError(t, err)
		return issue.ID
	}
	low := mk(models.CategoryNetwork, "Low")
	high := mk(models.CategoryNetwork, "High")
	cleaning := mk(models.CategoryCleaning, "Medium")

	issues, err := svc.List(ctx, store.IssueListFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, []int64{cleaning, high, low}, []int64{issues[0].ID, issues[1].ID, issues[2].ID})
}

func TestImport_KeepsStatusAndTimestamps(t *testing.T) {
	svc, n, _ := setupService(t)
	ctx := context.Background()

	submitted := time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC)
	updated := submitted.Add(48 * time.Hour)
	issue, err := svc.Import(ctx, validSubmission(), models.IssueStatusResolved, submitted, updated)
	require.NoError(t, err)

	got, err := svc.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, got.Status)
	assert.True(t, got.SubmittedAt.Equal(submitted))
	assert.True(t, got.UpdatedAt.Equal(updated))
	assert.Empty(t, n.received, "imports send no email")
	assert.Empty(t, n.resolved)
}

func TestImport_Defaults(t *testing.T) {
	svc, _, _ := setupService(t)

	issue, err := svc.Import(context.Background(), validSubmission(), "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusPending, issue.Status)
	assert.False(t, issue.SubmittedAt.IsZero())
	assert.True(t, issue.UpdatedAt.Equal(issue.SubmittedAt))
}

func TestImport_Invalid(t *testing.T) {
	svc, _, s := setupService(t)
	ctx := context.Background()

	sub := validSubmission()
	sub.RoomNumber = "Aula"
	_, err := svc.Import(ctx, sub, "archived", time.Time{}, time.Time{})

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("room_number"))
	assert.True(t, verr.Has("status"))

	list, err := s.ListIssues(ctx, store.IssueListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
