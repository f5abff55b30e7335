package models

import "strings"

// Facility issue categories offered on the submission form, in display order.
const (
	CategoryLighting = "Lighting issues"
	CategorySanitary = "Sanitary problems"
	CategoryHVAC     = "Heating, ventilation or air conditioning issues"
	CategoryCleaning = "Cleaning needs due to heavy soiling"
	CategoryNetwork  = "Network/internet problems"
	CategoryIT       = "Issues with/lack of IT equipment"
)

// Categories is the canonical ordered set of issue types.
var Categories = []string{
	CategoryLighting,
	CategorySanitary,
	CategoryHVAC,
	CategoryCleaning,
	CategoryNetwork,
	CategoryIT,
}

const issueTypeSeparator = ", "

// IsCategory reports whether label is one of the predefined categories.
func IsCategory(label string) bool {
	for _, c := range Categories {
		if c == label {
			return true
		}
	}
	return false
}

// NormalizeIssueTypes deduplicates the given labels and puts known categories
// in canonical order. Unknown labels are returned separately.
func NormalizeIssueTypes(labels []string) (known []string, unknown []string) {
	selected := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if IsCategory(l) {
			selected[l] = true
		} else {
			unknown = append(unknown, l)
		}
	}
	for _, c := range Categories {
		if selected[c] {
			known = append(known, c)
		}
	}
	return known, unknown
}

// JoinIssueTypes joins labels with the storage separator.
func JoinIssueTypes(labels []string) string {
	return strings.Join(labels, issueTypeSeparator)
}

// SplitIssueTypes parses a stored issue-type column. The HVAC label contains
// commas itself, so known labels are matched greedily before falling back to
// splitting on the separator.
func SplitIssueTypes(s string) []string {
	var out []string
	rest := strings.TrimSpace(s)
	for rest != "" {
		matched := false
		for _, c := range Categories {
			if rest == c || strings.HasPrefix(rest, c+issueTypeSeparator) {
				out = append(out, c)
				rest = strings.TrimPrefix(strings.TrimPrefix(rest, c), issueTypeSeparator)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		head, tail, _ := strings.Cut(rest, issueTypeSeparator)
		out = append(out, head)
		rest = tail
	}
	return out
}
