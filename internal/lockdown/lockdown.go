// Package lockdown decides whether external reports may be released for a case.
//
// Evaluation is pure: it reads flags, tasks and a risk summary, takes the
// current date as an argument, and returns a verdict with an ordered issue
// list. Persisting runs, notifying reviewers and gating UI actions belong to
// the caller.
package lockdown

import (
	"time"

	"caregate/internal/domain"
)

const (
	msgOpenCritical = "There are open CRITICAL flags. Resolve or document explicit exception before releasing external reports."
	msgOpenHigh     = "There are open HIGH severity flags. These should be resolved, downgraded with rationale, or clearly addressed before report release."
	msgVigilance    = "Vigilance risk is HIGH. Confirm that safety/monitoring plans are current and clearly documented before releasing reports."
	msgOverdue      = "There are overdue clinical or safety tasks. Reports should not be released until overdue tasks are addressed or exception-documented."
	msgVitalityRed  = "Vitality is in the Red zone (< 4.0). Case appears clinically unstable or stalled; external reporting should reflect current instability or be delayed until reassessed."
	msgVitalityAmb  = "Vitality is in the Amber zone (4.0-7.9). Ensure that external reports accurately reflect active issues and ongoing interventions."
	msgOpenTasks    = "There are open RN CM tasks. Confirm that these are appropriately described in the report or clearly documented as ongoing work."
	msgVeracity     = "Veracity (V4) attestation not explicitly recorded. QMP / Supervisor should confirm integrity and completeness of clinical narrative before external release."
	msgVerification = "Verification (V8) guideline/variance review is not explicitly recorded. Confirm any ODG/MCG variances and payer-related decisions are documented."
	msgClientAck    = "Most recent client acknowledgment / consent status is not explicitly linked to this report. Confirm that client has been informed and consent status is current before release."
)

// Evaluator binds a risk scorer to the pure decision.
type Evaluator struct {
	Scorer Scorer
}

// Evaluate scores the case with the configured scorer and applies the rules.
func (e Evaluator) Evaluate(state domain.CaseState, today time.Time) domain.LockdownResult {
	var risk *domain.RiskSummary
	if e.Scorer != nil {
		risk = e.Scorer.Score(state)
	}
	return Evaluate(state, risk, today)
}

// Evaluate applies the release rules in fixed order. A nil risk summary, or
// empty fields within it, fall back to the defaults of ResolveRisk.
func Evaluate(state domain.CaseState, risk *domain.RiskSummary, today time.Time) domain.LockdownResult {
	flags := SummarizeFlags(state.Flags)
	tasks := SummarizeTasks(state.Tasks, today)
	resolved := ResolveRisk(risk)
	vitality := *resolved.VitalityScore

	issues := make([]domain.Issue, 0, 10)
	add := func(code domain.IssueCode, sev domain.IssueSeverity, msg string) {
		issues = append(issues, domain.Issue{Code: code, Severity: sev, Message: msg})
	}

	if len(flags.Critical) > 0 {
		add(domain.CodeOpenCriticalFlags, domain.IssueBlock, msgOpenCritical)
	}
	if len(flags.High) > 0 {
		add(domain.CodeOpenHighFlags, domain.IssueBlock, msgOpenHigh)
	}
	if resolved.VigilanceRiskCategory == domain.VigilanceHigh {
		add(domain.CodeUnresolvedVigilance, domain.IssueBlock, msgVigilance)
	}
	if len(tasks.Overdue) > 0 {
		add(domain.CodeOverdueTasks, domain.IssueBlock, msgOverdue)
	}
	switch VitalityBand(vitality) {
	case domain.RAGRed:
		add(domain.CodeLowVitality, domain.IssueBlock, msgVitalityRed)
	case domain.RAGAmber:
		add(domain.CodeLowVitality, domain.IssueWarn, msgVitalityAmb)
	}
	if len(tasks.Open) > 0 {
		add(domain.CodeOpenTasks, domain.IssueWarn, msgOpenTasks)
	}
	// Attestation fields are not modelled yet, so these always fire.
	add(domain.CodeMissingVeracityAttestation, domain.IssueWarn, msgVeracity)
	add(domain.CodeMissingVerificationReview, domain.IssueWarn, msgVerification)
	add(domain.CodeMissingClientAck, domain.IssueWarn, msgClientAck)

	return Verdict(issues)
}

// Verdict derives release permission and the aggregate risk level from issues.
func Verdict(issues []domain.Issue) domain.LockdownResult {
	hasBlock, hasWarn := false, false
	for _, i := range issues {
		switch i.Severity {
		case domain.IssueBlock:
			hasBlock = true
		case domain.IssueWarn:
			hasWarn = true
		}
	}
	level := domain.RiskLow
	switch {
	case hasBlock:
		level = domain.RiskHigh
	case hasWarn:
		level = domain.RiskModerate
	}
	if issues == nil {
		issues = []domain.Issue{}
	}
	return domain.LockdownResult{
		CanRelease: !hasBlock,
		RiskLevel:  level,
		Issues:     issues,
	}
}

// Blocking returns the BLOCK issues of a result.
func Blocking(r domain.LockdownResult) []domain.Issue {
	var out []domain.Issue
	for _, i := range r.Issues {
		if i.Severity == domain.IssueBlock {
			out = append(out, i)
		}
	}
	return out
}
