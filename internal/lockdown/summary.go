package lockdown

import (
	"strings"
	"time"

	"caregate/internal/domain"
)

// DateLayout is the fixed-width calendar date format used for due dates.
const DateLayout = "2006-01-02"

type FlagSummary struct {
	Open      []domain.Flag `json:"open"`
	Critical  []domain.Flag `json:"critical"`
	High      []domain.Flag `json:"high"`
	Vigilance []domain.Flag `json:"vigilance"`
}

// SummarizeFlags partitions flags by status and severity. Order follows the input.
func SummarizeFlags(flags []domain.Flag) FlagSummary {
	var s FlagSummary
	for _, f := range flags {
		if f.Status != domain.FlagOpen {
			continue
		}
		s.Open = append(s.Open, f)
		switch f.Severity {
		case domain.SeverityCritical:
			s.Critical = append(s.Critical, f)
		case domain.SeverityHigh:
			s.High = append(s.High, f)
		}
		if TypeContains(f, "vigilance") {
			s.Vigilance = append(s.Vigilance, f)
		}
	}
	return s
}

// TypeContains reports whether the flag type contains sub, ignoring case.
func TypeContains(f domain.Flag, sub string) bool {
	return strings.Contains(strings.ToLower(f.Type), strings.ToLower(sub))
}

type TaskSummary struct {
	Open    []domain.Task `json:"open"`
	Overdue []domain.Task `json:"overdue"`
}

// SummarizeTasks splits open tasks and the subset whose due date falls before today.
// today is formatted in its own location.
func SummarizeTasks(tasks []domain.Task, today time.Time) TaskSummary {
	day := today.Format(DateLayout)
	var s TaskSummary
	for _, t := range tasks {
		if t.Status != domain.TaskOpen {
			continue
		}
		s.Open = append(s.Open, t)
		if IsOverdue(t, day) {
			s.Overdue = append(s.Overdue, t)
		}
	}
	return s
}

// IsOverdue compares due dates as YYYY-MM-DD strings.
func IsOverdue(t domain.Task, today string) bool {
	return t.Status == domain.TaskOpen && t.DueDate != nil && *t.DueDate != "" && *t.DueDate < today
}
