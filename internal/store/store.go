package store

import (
	"context"
	"time"

	"github.com/joescharf/campusreport/internal/models"
)

// IssueListFilter specifies filters for listing issues.
type IssueListFilter struct {
	Status     models.IssueStatus
	Importance models.Importance
	IssueType  string
}

// Store defines the persistence interface for campusreport.
type Store interface {
	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id int64) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	UpdateIssueStatus(ctx context.Context, id int64, status models.IssueStatus, at time.Time) error

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id string) error

	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
