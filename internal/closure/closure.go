// Package closure grades case complexity and recommends whether a case can be
// closed from the RN care-management standpoint. It makes no legal or
// settlement decision.
package closure

import (
	"time"

	"caregate/internal/domain"
	"caregate/internal/lockdown"
)

type SeverityAssessment struct {
	Level     int      `json:"level" minimum:"1" maximum:"4"`
	Label     string   `json:"label"`
	Rationale []string `json:"rationale"`
}

type Recommendation struct {
	CanClose      bool               `json:"can_close"`
	SuggestedType domain.ClosureType `json:"suggested_type,omitempty"`
	Reasons       []string           `json:"reasons"`
	BlockingFlags []domain.Flag      `json:"blocking_flags"`
	BlockingTasks []domain.Task      `json:"blocking_tasks"`
}

var levelLabels = map[int]string{
	1: "Level 1 - Simple",
	2: "Level 2 - Moderate",
	3: "Level 3 - Complex",
	4: "Level 4 - Severely Complex",
}

// LevelLabel names a severity level.
func LevelLabel(level int) string {
	return levelLabels[level]
}

type flagCounts struct {
	highCrit int
	sdoh     int
	psych    int
}

func countFlags(flags []domain.Flag) flagCounts {
	fs := lockdown.SummarizeFlags(flags)
	var c flagCounts
	c.highCrit = len(fs.Critical) + len(fs.High)
	for _, f := range fs.Open {
		if lockdown.TypeContains(f, "sdoh") {
			c.sdoh++
		}
		if lockdown.TypeContains(f, "psych") {
			c.psych++
		}
	}
	return c
}

// highCritInOrder returns open High and Critical flags in input order.
func highCritInOrder(flags []domain.Flag) []domain.Flag {
	var out []domain.Flag
	for _, f := range flags {
		if f.Status == domain.FlagOpen && f.Severity.Weight() >= domain.SeverityHigh.Weight() {
			out = append(out, f)
		}
	}
	return out
}

// AssessSeverity starts at level 1 and escalates on flags, vitality,
// vigilance and overdue work. risk is resolved with lockdown defaults.
func AssessSeverity(state domain.CaseState, risk *domain.RiskSummary, today time.Time) SeverityAssessment {
	fc := countFlags(state.Flags)
	ts := lockdown.SummarizeTasks(state.Tasks, today)
	r := lockdown.ResolveRisk(risk)
	vitality := *r.VitalityScore

	level := 1
	var rationale []string
	raise := func(min int) {
		if level < min {
			level = min
		}
	}

	highCrit := fc.highCrit
	if highCrit > 0 || fc.sdoh > 0 || fc.psych > 0 {
		level = 3
		rationale = append(rationale, "Multiple high-risk issues (high/critical flags, SDOH barriers, or psychological comorbidity).")
	}
	if highCrit >= 2 || (fc.sdoh > 0 && fc.psych > 0) {
		level = 4
		rationale = append(rationale, "Severe complexity due to multiple critical risks and compounding barriers.")
	}

	switch lockdown.VitalityBand(vitality) {
	case domain.RAGRed:
		raise(3)
		rationale = append(rationale, "Low vitality score (Red zone). Plan momentum is poor.")
	case domain.RAGAmber:
		raise(2)
		rationale = append(rationale, "Amber vitality score. Active issues still present.")
	default:
		if level < 2 {
			rationale = append(rationale, "High vitality score with good engagement and progress.")
		}
	}

	if r.VigilanceRiskCategory == domain.VigilanceHigh {
		raise(3)
		rationale = append(rationale, "High vigilance risk category from V7 (Vigilance).")
	}
	if len(ts.Overdue) > 0 {
		raise(2)
		rationale = append(rationale, "Open overdue tasks require active follow-up.")
	}
	if len(rationale) == 0 {
		rationale = append(rationale, "No major clinical or risk complexity identified.")
	}
	return SeverityAssessment{Level: level, Label: LevelLabel(level), Rationale: rationale}
}

// RecommendClosure blocks on open High/Critical flags, any open task, Red
// vitality or High vigilance. SDOH barriers and overdue tasks add reasons.
func RecommendClosure(state domain.CaseState, risk *domain.RiskSummary, today time.Time) Recommendation {
	fc := countFlags(state.Flags)
	ts := lockdown.SummarizeTasks(state.Tasks, today)
	r := lockdown.ResolveRisk(risk)
	vitality := *r.VitalityScore

	rec := Recommendation{
		Reasons:       []string{},
		BlockingFlags: []domain.Flag{},
		BlockingTasks: []domain.Task{},
	}

	if hc := highCritInOrder(state.Flags); len(hc) > 0 {
		rec.BlockingFlags = append(rec.BlockingFlags, hc...)
		rec.Reasons = append(rec.Reasons, "Open High/Critical flags must be addressed or safely closed before case closure.")
	}
	if fc.sdoh > 0 {
		rec.Reasons = append(rec.Reasons, "Unresolved SDOH barriers remain. Document disposition or mitigation plan before closure.")
	}
	if len(ts.Open) > 0 {
		rec.BlockingTasks = append(rec.BlockingTasks, ts.Open...)
		rec.Reasons = append(rec.Reasons, "There are open RN CM tasks that must be resolved or closed.")
	}
	if len(ts.Overdue) > 0 {
		rec.Reasons = append(rec.Reasons, "One or more tasks are overdue. Overdue items must be resolved or brought current.")
	}
	redVitality := vitality < 4
	if redVitality {
		rec.Reasons = append(rec.Reasons, "Vitality is in the Red zone. Case should remain open for active management.")
	}
	highVigilance := r.VigilanceRiskCategory == domain.VigilanceHigh
	if highVigilance {
		rec.Reasons = append(rec.Reasons, "Vigilance risk is High. RN CM monitoring is still recommended.")
	}

	if len(rec.BlockingFlags) > 0 || len(rec.BlockingTasks) > 0 || redVitality || highVigilance {
		return rec
	}
	rec.CanClose = true
	rec.SuggestedType = domain.ClosureTasksCompletePendingSettlement
	rec.Reasons = append(rec.Reasons, "All RN CM tasks and high-risk items are resolved. Case may be closed from the RN CM perspective, pending settlement or administrative disposition.")
	return rec
}
