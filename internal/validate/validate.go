// Package validate holds the input format checks for campus email addresses
// and room numbers.
package validate

import (
	"regexp"
	"strings"
)

// DefaultEmailDomain is the institution domain used when none is configured.
const DefaultEmailDomain = "unisg.ch"

var roomNumberPattern = regexp.MustCompile(`^[A-Z] \d{2}-\d{3}$`)

// Rules validates user input against the campus formats.
type Rules struct {
	Domain string
	email  *regexp.Regexp
}

// NewRules builds rules for the given institution email domain. Addresses on
// the "student." subdomain are accepted as well.
func NewRules(domain string) *Rules {
	domain = strings.TrimSpace(strings.TrimPrefix(domain, "@"))
	if domain == "" {
		domain = DefaultEmailDomain
	}
	return &Rules{
		Domain: domain,
		email:  regexp.MustCompile(`^[\p{L}\p{N}_.]+@(student\.)?` + regexp.QuoteMeta(domain) + `$`),
	}
}

// Email reports whether s is an institution address. The local part may use
// any Unicode letters and digits plus '_' and '.'. The empty string is valid;
// required-field checks happen separately.
func (r *Rules) Email(s string) bool {
	if s == "" {
		return true
	}
	return r.email.MatchString(s)
}

// RoomNumber reports whether s looks like "A 09-001". The empty string is valid.
func (r *Rules) RoomNumber(s string) bool {
	return ValidRoomNumber(s)
}

// ValidRoomNumber is RoomNumber without a Rules value.
func ValidRoomNumber(s string) bool {
	if s == "" {
		return true
	}
	return roomNumberPattern.MatchString(s)
}
