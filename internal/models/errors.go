package models

import (
	"fmt"
	"strings"
)

// FieldError describes one missing or malformed input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a submission or status change is rejected
// before reaching the store.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field problem.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Has reports whether the given field has an error.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// OrNil returns e as an error if any field failed, or nil.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NotFoundError is returned for an unknown record id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotificationKind names the email template that failed.
type NotificationKind string

const (
	NotificationReceived NotificationKind = "received"
	NotificationResolved NotificationKind = "resolved"
)

// NotificationError reports a failed email. The store write that triggered
// the notification has already been committed.
type NotificationError struct {
	Kind      NotificationKind
	Recipient string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("send %s notification to %s: %v", e.Kind, e.Recipient, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
