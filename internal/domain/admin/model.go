package admin

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/smhs/intake/internal/domain/intake"
)

// Submission is one row of the admin submissions list. It carries only the
// fields the dashboard charts and the list view need.
type Submission struct {
	StudentUUID            uuid.UUID         `json:"student_uuid"`
	Status                 intake.Status     `json:"status"`
	SubmittedDate          intake.Timestamp  `json:"submitted_date"`
	ProcessedDate          *intake.Timestamp `json:"processed_date,omitempty"`
	StudentName            string            `json:"student_name"`
	School                 string            `json:"school"`
	Grade                  string            `json:"grade"`
	SeverityOfConcern      intake.Severity   `json:"severity_of_concern"`
	ServiceCategory        []string          `json:"service_category"`
	ImmediateSafetyConcern intake.YesNo      `json:"immediate_safety_concern"`
}

// Page is one page of the submissions list.
type Page struct {
	Items []Submission `json:"items"`
	Total int          `json:"total"`
}

// ProcessRequest is the body of a process call.
type ProcessRequest struct {
	Note string `json:"note"`
}

// Count is one bar of a chart series.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary is the dashboard view over every submission.
type Summary struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Processed     int     `json:"processed"`
	SafetyFlagged int     `json:"safety_flagged"`
	ByStatus      []Count `json:"by_status"`
	BySeverity    []Count `json:"by_severity"`
	ByCategory    []Count `json:"by_category"`
	BySchool      []Count `json:"by_school"`
	ByMonth       []Count `json:"by_month"`
}

const unknownLabel = "Unknown"

var severityOrder = []intake.Severity{intake.SeverityMild, intake.SeverityModerate, intake.SeveritySevere}

// Summarize aggregates items into chart series. Status, category and school
// series are ordered by count, largest first; severity follows mild to severe
// and months run oldest first.
func Summarize(items []Submission) Summary {
	out := Summary{Total: len(items), BySeverity: []Count{}, ByMonth: []Count{}}
	status := map[string]int{}
	severity := map[string]int{}
	category := map[string]int{}
	school := map[string]int{}
	month := map[string]int{}

	for _, it := range items {
		switch it.Status {
		case intake.StatusProcessed:
			out.Processed++
		case intake.StatusPending, intake.StatusSubmitted:
			out.Pending++
		}
		if it.ImmediateSafetyConcern == intake.Yes {
			out.SafetyFlagged++
		}
		status[labelOr(string(it.Status))]++
		severity[labelOr(string(it.SeverityOfConcern))]++
		school[labelOr(it.School)]++
		seen := map[string]bool{}
		for _, c := range it.ServiceCategory {
			c = strings.TrimSpace(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			category[c]++
		}
		if !it.SubmittedDate.IsZero() {
			month[it.SubmittedDate.Format("2006-01")]++
		}
	}

	out.ByStatus = byCount(status)
	out.ByCategory = byCount(category)
	out.BySchool = byCount(school)

	for _, s := range severityOrder {
		if n := severity[string(s)]; n > 0 {
			out.BySeverity = append(out.BySeverity, Count{Label: string(s), Count: n})
			delete(severity, string(s))
		}
	}
	out.BySeverity = append(out.BySeverity, byCount(severity)...)

	for label, n := range month {
		out.ByMonth = append(out.ByMonth, Count{Label: label, Count: n})
	}
	sort.Slice(out.ByMonth, func(i, j int) bool { return out.ByMonth[i].Label < out.ByMonth[j].Label })
	return out
}

func labelOr(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return unknownLabel
	}
	return s
}

func byCount(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for label, n := range m {
		out = append(out, Count{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
