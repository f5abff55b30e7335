package models

import (
	"strings"
	"time"
)

// IssueStatus represents the lifecycle stage of a reported issue.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "pending"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
)

// IssueStatuses lists all statuses in lifecycle order.
var IssueStatuses = []IssueStatus{IssueStatusPending, IssueStatusInProgress, IssueStatusResolved}

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusPending, IssueStatusInProgress, IssueStatusResolved:
		return true
	}
	return false
}

// Label returns the human-readable form shown on the dashboard.
func (s IssueStatus) Label() string {
	switch s {
	case IssueStatusPending:
		return "Pending"
	case IssueStatusInProgress:
		return "In Progress"
	case IssueStatusResolved:
		return "Resolved"
	default:
		return string(s)
	}
}

// ParseIssueStatus accepts either the stored value or the label ("In Progress", "in-progress").
func ParseIssueStatus(s string) (IssueStatus, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	st := IssueStatus(norm)
	return st, st.Valid()
}

// Importance is the submitter-assigned priority of an issue.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Importances lists importance levels from highest to lowest.
var Importances = []Importance{ImportanceHigh, ImportanceMedium, ImportanceLow}

// Valid reports whether i is a known importance level.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh:
		return true
	}
	return false
}

// Label returns the capitalized form used in forms and emails.
func (i Importance) Label() string {
	switch i {
	case ImportanceLow:
		return "Low"
	case ImportanceMedium:
		return "Medium"
	case ImportanceHigh:
		return "High"
	default:
		return string(i)
	}
}

// ParseImportance is case-insensitive.
func ParseImportance(s string) (Importance, bool) {
	i := Importance(strings.ToLower(strings.TrimSpace(s)))
	return i, i.Valid()
}

// Issue represents a single reported facility problem.
type Issue struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	SubmitterEmail string      `json:"submitter_email"`
	IssueTypes     []string    `json:"issue_types"`
	RoomNumber     string      `json:"room_number"`
	Importance     Importance  `json:"importance"`
	Comment        string      `json:"comment"`
	Status         IssueStatus `json:"status"`
	SubmittedAt    time.Time   `json:"submitted_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// IssueTypeList returns the comma-joined category labels as stored.
func (i *Issue) IssueTypeList() string {
	return JoinIssueTypes(i.IssueTypes)
}
