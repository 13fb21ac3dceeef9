// Package audit assembles the supervisor quick-audit view of a case and
// exports batches of them as a spreadsheet.
package audit

import (
	"time"

	"caregate/internal/closure"
	"caregate/internal/domain"
	"caregate/internal/lockdown"
	"caregate/internal/tenvs"
)

type Counts struct {
	OpenFlags      int `json:"open_flags"`
	CriticalFlags  int `json:"critical_flags"`
	HighFlags      int `json:"high_flags"`
	VigilanceFlags int `json:"vigilance_flags"`
	OpenTasks      int `json:"open_tasks"`
	OverdueTasks   int `json:"overdue_tasks"`
}

type Snapshot struct {
	Case        domain.Case                `json:"case"`
	GeneratedAt string                     `json:"generated_at" format:"date-time"`
	EvaluatedOn string                     `json:"evaluated_on" format:"date"`
	Risk        domain.RiskSummary         `json:"risk"`
	Counts      Counts                     `json:"counts"`
	Severity    closure.SeverityAssessment `json:"severity"`
	Closure     closure.Recommendation     `json:"closure"`
	Lockdown    domain.LockdownResult      `json:"lockdown"`
	TenVs       *tenvs.Evaluation          `json:"ten_vs,omitempty"`
}

// Build runs every read-only evaluator over one case. now is used both as
// the generation timestamp and as "today" for due-date checks.
func Build(state domain.CaseState, scorer lockdown.Scorer, now time.Time) Snapshot {
	var risk *domain.RiskSummary
	if scorer != nil {
		risk = scorer.Score(state)
	}
	fs := lockdown.SummarizeFlags(state.Flags)
	ts := lockdown.SummarizeTasks(state.Tasks, now)
	snap := Snapshot{
		Case:        state.Case,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		EvaluatedOn: now.Format(lockdown.DateLayout),
		Risk:        lockdown.ResolveRisk(risk),
		Counts: Counts{
			OpenFlags:      len(fs.Open),
			CriticalFlags:  len(fs.Critical),
			HighFlags:      len(fs.High),
			VigilanceFlags: len(fs.Vigilance),
			OpenTasks:      len(ts.Open),
			OverdueTasks:   len(ts.Overdue),
		},
		Severity: closure.AssessSeverity(state, risk, now),
		Closure:  closure.RecommendClosure(state, risk, now),
		Lockdown: lockdown.Evaluate(state, risk, now),
	}
	if state.Assessment != nil {
		ev := tenvs.Evaluate(*state.Assessment, state.Flags)
		snap.TenVs = &ev
	}
	return snap
}
