package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/campusreport/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func newIssue(types []string, importance models.Importance) *models.Issue {
	return &models.Issue{
		Name:           "Anna",
		SubmitterEmail: "anna@student.unisg.ch",
		IssueTypes:     types,
		RoomNumber:     "A 09-001",
		Importance:     importance,
		Comment:        "Light flickers",
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Issues ---

func TestIssueCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, zurich)

	issue := newIssue([]string{models.CategoryLighting, models.CategoryHVAC}, models.ImportanceHigh)
	issue.SubmittedAt = at
	require.NoError(t, s.CreateIssue(ctx, issue))
	assert.Equal(t, int64(1), issue.ID)
	assert.Equal(t, models.IssueStatusPending, issue.Status)

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.Name)
	assert.Equal(t, "anna@student.unisg.ch", got.SubmitterEmail)
	assert.Equal(t, []string{models.CategoryLighting, models.CategoryHVAC}, got.IssueTypes)
	assert.Equal(t, "A 09-001", got.RoomNumber)
	assert.Equal(t, models.ImportanceHigh, got.Importance)
	assert.Equal(t, models.IssueStatusPending, got.Status)
	assert.True(t, at.Equal(got.SubmittedAt), "submitted_at round trips: %v", got.SubmittedAt)
	assert.True(t, at.Equal(got.UpdatedAt))
}

func TestIssueIDsAreMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 3; i++ {
		issue := newIssue([]string{models.CategorySanitary}, models.ImportanceLow)
		require.NoError(t, s.CreateIssue(ctx, issue))
		assert.Greater(t, issue.ID, last)
		last = issue.ID
	}
}

func TestGetIssue_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetIssue(context.Background(), 99)
	var nf *models.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "99", nf.ID)
}

func TestListIssues_Ordering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIssue(ctx, newIssue([]string{models.CategorySanitary}, models.ImportanceLow)))    // 1
	require.NoError(t, s.CreateIssue(ctx, newIssue([]string{models.CategoryLighting}, models.ImportanceMedium))) // 2
	require.NoError(t, s.CreateIssue(ctx, newIssue([]string{models.CategorySanitary}, models.ImportanceHigh)))   // 3
	require.NoError(t, s.CreateIssue(ctx, newIssue([]string{models.CategoryLighting}, models.ImportanceHigh)))   // 4
	require.NoError(t, s.CreateIssue(ctx, newIssue([]string{models.CategoryLighting}, models.ImportanceLow)))    // 5

	issues, err := s.ListIssues(ctx, IssueListFilter{})
	require.NoError(t, err)

	var ids []int64
	for _, i := range issues {
		ids = append(ids, i.ID)
	}
	assert.Equal(t, []int64{4, 2, 5, 3, 1}, ids)
}

func TestListIssues_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newIssue([]string{models.CategoryHVAC, models.CategoryNetwork}, models.ImportanceHigh)
	b := newIssue([]string{models.CategoryNetwork}, models.ImportanceLow)
	c := newIssue([]string{models.CategoryCleaning}, models.ImportanceLow)
	for _, i := range []*models.Issue{a, b, c} {
		require.NoError(t, s.CreateIssue(ctx, i))
	}
	require.NoError(t, s.UpdateIssueStatus(ctx, c.ID, models.IssueStatusResolved, time.Now()))

	issues, err := s.ListIssues(ctx, IssueListFilter{IssueType: models.CategoryNetwork})
	require.NoError(t, err)
	assert.Len(t, issues, 2)

	issues, err = s.ListIssues(ctx, IssueListFilter{IssueType: models.CategoryHVAC})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, a.ID, issues[0].ID)

	issues, err = s.ListIssues(ctx, IssueListFilter{Importance: models.ImportanceLow})
	require.NoError(t, err)
	assert.Len(t, issues, 2)

	issues, err = s.ListIssues(ctx, IssueListFilter{Status: models.IssueStatusResolved})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, c.ID, issues[0].ID)

	issues, err = s.ListIssues(ctx, IssueListFilter{Status: models.IssueStatusPending, Importance: models.ImportanceLow})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, b.ID, issues[0].ID)
}

func TestUpdateIssueStatus_OnlyTouchesTarget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	a := newIssue([]string{models.CategoryIT}, models.ImportanceMedium)
	a.SubmittedAt = created
	b := newIssue([]string{models.CategoryIT}, models.ImportanceMedium)
	b.SubmittedAt = created
	require.NoError(t, s.CreateIssue(ctx, a))
	require.NoError(t, s.CreateIssue(ctx, b))

	later := created.Add(48 * time.Hour)
	require.NoError(t, s.UpdateIssueStatus(ctx, a.ID, models.IssueStatusResolved, later))

	gotA, err := s.GetIssue(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, gotA.Status)
	assert.True(t, later.Equal(gotA.UpdatedAt))
	assert.True(t, created.Equal(gotA.SubmittedAt))

	gotB, err := s.GetIssue(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusPending, gotB.Status)
	assert.True(t, created.Equal(gotB.UpdatedAt))
}

func TestUpdateIssueStatus_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newIssue([]string{models.CategoryIT}, models.ImportanceMedium)
	require.NoError(t, s.CreateIssue(ctx, a))

	err := s.UpdateIssueStatus(ctx, a.ID+1, models.IssueStatusResolved, time.Now())
	var nf *models.NotFoundError
	require.True(t, errors.As(err, &nf))

	issues, err := s.ListIssues(ctx, IssueListFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueStatusPending, issues[0].Status)
}

func TestUpdateIssueStatus_RejectsUnknownStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newIssue([]string{models.CategoryIT}, models.ImportanceMedium)
	require.NoError(t, s.CreateIssue(ctx, a))

	err := s.UpdateIssueStatus(ctx, a.ID, models.IssueStatus("closed"), time.Now())
	assert.Error(t, err, "CHECK constraint should reject unknown status")
}

func TestCreateIssue_RejectsEmptyIssueType(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateIssue(context.Background(), newIssue(nil, models.ImportanceLow))
	assert.Error(t, err)
}

// --- Users & sessions ---

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Username: "facility", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotEmpty(t, u.ID)

	got, err := s.GetUserByUsername(ctx, "facility")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "facility", got.Username)

	// Duplicate username
	assert.Error(t, s.CreateUser(ctx, &models.User{Username: "facility", PasswordHash: "x"}))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.GetUser(ctx, u.ID)
	var nf *models.NotFoundError
	assert.True(t, errors.As(err, &nf))

	assert.Error(t, s.DeleteUser(ctx, u.ID))
}

func TestSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Username: "facility", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, u))

	now := time.Now().UTC()
	live := &models.Session{Token: "live", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	dead := &models.Session{Token: "dead", UserID: u.ID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, s.CreateSession(ctx, live))
	require.NoError(t, s.CreateSession(ctx, dead))

	got, err := s.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSession(ctx, "dead")
	assert.Error(t, err)

	require.NoError(t, s.DeleteSession(ctx, "live"))
	_, err = s.GetSession(ctx, "live")
	assert.Error(t, err)
}

func TestDeleteUser_CascadesSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Username: "facility", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, u))
	now := time.Now().UTC()
	require.NoError(t, s.CreateSession(ctx, &models.Session{Token: "t", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err := s.GetSession(ctx, "t")
	assert.Error(t, err)
}

func TestListIssues_IssueTypeMatchesWholeLabel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIssue(ctx, newIssue([]string{models.CategoryHVAC}, models.ImportanceMedium)))

	for _, partial := range []string{
		"ventilation or air conditioning issues",
		"Heating",
		"%",
		"_%",
	} {
		issues, err := s.ListIssues(ctx, IssueListFilter{IssueType: partial})
		require.NoError(t, err)
		assert.Empty(t, issues, "filter %q", partial)
	}

	issues, err := s.ListIssues(ctx, IssueListFilter{IssueType: models.CategoryHVAC})
	require.NoError(t, err)
	assert.Len(t, issues, 1)
}
