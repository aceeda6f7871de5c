package entity

import (
	"fmt"
	"strings"
	"time"
)

// InspectionReport итог проверки стопки слоёв.
type InspectionReport struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	LayerCount int           `json:"layer_count"`
	Duration   time.Duration `json:"duration"`
	Issues     MainIssues    `json:"issues"`
}

// HasIssues флаг наличия проблем.
func (r *InspectionReport) HasIssues() bool {
	return len(r.Issues) > 0
}

// Issue возвращает n-ю (с единицы) проблему плоского списка.
func (r *InspectionReport) Issue(n int) (Issue, bool) {
	issues := r.Issues.Issues()
	if n < 1 || n > len(issues) {
		return Issue{}, false
	}
	return issues[n-1], true
}

// Summary текстовое резюме: счётчики по типам и первые limit проблем.
func (r *InspectionReport) Summary(limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report %s: %d layers, %d issues\n", r.ID, r.LayerCount, len(r.Issues.Issues()))
	counts := r.Issues.CountByType()
	for _, t := range IssueTypes() {
		if counts[t] > 0 {
			fmt.Fprintf(&b, "  %-14s %d\n", t, counts[t])
		}
	}
	for n, issue := range r.Issues.Issues() {
		if limit > 0 && n >= limit {
			fmt.Fprintf(&b, "  ...\n")
			break
		}
		fmt.Fprintf(&b, "%3d. %-14s layer %-5d area %-8.0f at %v\n",
			n+1, issue.Type, issue.LayerIndex, issue.Area, issue.Bounds)
	}
	return b.String()
}
