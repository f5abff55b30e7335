// Package stats aggregates issues into the counts shown on the dashboard.
package stats

import (
	"sort"
	"time"

	"github.com/joescharf/campusreport/internal/models"
)

// AxisLabelLength is the maximum length of a category label on chart axes.
const AxisLabelLength = 20

// Bucket is one bar or slice of a chart.
type Bucket struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summary holds every dashboard aggregate.
type Summary struct {
	Total        int      `json:"total"`
	ByIssueType  []Bucket `json:"by_issue_type"`
	ByDay        []Bucket `json:"by_day"`
	ByImportance []Bucket `json:"by_importance"`
	ByStatus     []Bucket `json:"by_status"`
}

// Summarize computes all aggregates. Submission days are taken in loc.
func Summarize(issues []*models.Issue, loc *time.Location) *Summary {
	if loc == nil {
		loc = time.Local
	}
	s := &Summary{Total: len(issues)}

	typeCounts := make(map[string]int)
	dayCounts := make(map[string]int)
	importanceCounts := make(map[models.Importance]int)
	statusCounts := make(map[models.IssueStatus]int)

	for _, issue := range issues {
		for _, t := range issue.IssueTypes {
			typeCounts[t]++
		}
		dayCounts[issue.SubmittedAt.In(loc).Format(time.DateOnly)]++
		importanceCounts[issue.Importance]++
		statusCounts[issue.Status]++
	}

	s.ByIssueType = issueTypeBuckets(typeCounts)
	s.ByDay = dayBuckets(dayCounts)
	for _, imp := range models.Importances {
		s.ByImportance = append(s.ByImportance, Bucket{Key: string(imp), Label: imp.Label(), Count: importanceCounts[imp]})
	}
	for _, st := range models.IssueStatuses {
		s.ByStatus = append(s.ByStatus, Bucket{Key: string(st), Label: st.Label(), Count: statusCounts[st]})
	}

	withPercent(s.ByImportance, s.Total)
	withPercent(s.ByStatus, s.Total)
	withPercent(s.ByDay, s.Total)
	// An issue may carry several types, so type shares are relative to the
	// number of type selections.
	var selections int
	for _, b := range s.ByIssueType {
		selections += b.Count
	}
	withPercent(s.ByIssueType, selections)

	return s
}

// Max returns the largest count in buckets, for scaling bars.
func Max(buckets []Bucket) int {
	m := 0
	for _, b := range buckets {
		if b.Count > m {
			m = b.Count
		}
	}
	return m
}

// issueTypeBuckets orders by count descending, then by canonical category
// order, like a value count.
func issueTypeBuckets(counts map[string]int) []Bucket {
	rank := make(map[string]int, len(models.Categories))
	for i, c := range models.Categories {
		rank[c] = i
	}
	var out []Bucket
	for key, n := range counts {
		out = append(out, Bucket{Key: key, Label: Shorten(key, AxisLabelLength), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		ri, iok := rank[out[i].Key]
		rj, jok := rank[out[j].Key]
		if iok && jok {
			return ri < rj
		}
		if iok != jok {
			return iok
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func dayBuckets(counts map[string]int) []Bucket {
	var out []Bucket
	for day, n := range counts {
		out = append(out, Bucket{Key: day, Label: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func withPercent(buckets []Bucket, total int) {
	if total == 0 {
		return
	}
	for i := range buckets {
		buckets[i].Percent = float64(buckets[i].Count) * 100 / float64(total)
	}
}

// Shorten truncates s to at most n runes.
func Shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
