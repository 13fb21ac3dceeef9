package closure_test

import (
	"testing"
	"time"

	"caregate/internal/closure"
	"caregate/internal/domain"
)

var today = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func f64p(v float64) *float64 { return &v }
func strp(s string) *string   { return &s }

func greenRisk() *domain.RiskSummary {
	return &domain.RiskSummary{VitalityScore: f64p(9), VigilanceRiskCategory: domain.VigilanceLow}
}

func TestAssessSeverity(t *testing.T) {
	cases := []struct {
		name  string
		state domain.CaseState
		risk  *domain.RiskSummary
		level int
	}{
		{"green and clean", domain.CaseState{}, greenRisk(), 1},
		{"defaults are amber", domain.CaseState{}, nil, 2},
		{"one high flag", domain.CaseState{Flags: []domain.Flag{
			{Severity: domain.SeverityHigh, Status: domain.FlagOpen, Type: "clinical"},
		}}, greenRisk(), 3},
		{"sdoh plus psych compounds", domain.CaseState{Flags: []domain.Flag{
			{Severity: domain.SeverityLow, Status: domain.FlagOpen, Type: "SDOH-transport"},
			{Severity: domain.SeverityLow, Status: domain.FlagOpen, Type: "psych"},
		}}, greenRisk(), 4},
		{"red vitality", domain.CaseState{}, &domain.RiskSummary{VitalityScore: f64p(2)}, 3},
		{"high vigilance", domain.CaseState{}, &domain.RiskSummary{VitalityScore: f64p(9), VigilanceRiskCategory: domain.VigilanceHigh}, 3},
		{"overdue task", domain.CaseState{Tasks: []domain.Task{
			{Status: domain.TaskOpen, DueDate: strp("2025-05-01")},
		}}, greenRisk(), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := closure.AssessSeverity(tc.state, tc.risk, today)
			if got.Level != tc.level {
				t.Fatalf("level: got %d want %d (%v)", got.Level, tc.level, got.Rationale)
			}
			if got.Label != closure.LevelLabel(tc.level) || len(got.Rationale) == 0 {
				t.Fatalf("unexpected assessment: %+v", got)
			}
		})
	}
}

func TestAssessSeverityGreenRationale(t *testing.T) {
	got := closure.AssessSeverity(domain.CaseState{}, greenRisk(), today)
	if len(got.Rationale) != 1 || got.Rationale[0] != "High vitality score with good engagement and progress." {
		t.Fatalf("unexpected rationale: %v", got.Rationale)
	}
}

func TestRecommendClosure(t *testing.T) {
	state := domain.CaseState{
		Flags: []domain.Flag{
			{ID: "f1", Severity: domain.SeverityCritical, Status: domain.FlagOpen},
			{ID: "f2", Severity: domain.SeverityLow, Status: domain.FlagOpen},
		},
		Tasks: []domain.Task{
			{ID: "t1", Status: domain.TaskOpen},
			{ID: "t2", Status: domain.TaskCompleted},
		},
	}
	rec := closure.RecommendClosure(state, greenRisk(), today)
	if rec.CanClose || rec.SuggestedType != "" {
		t.Fatalf("expected blocked recommendation: %+v", rec)
	}
	if len(rec.BlockingFlags) != 1 || rec.BlockingFlags[0].ID != "f1" {
		t.Fatalf("blocking flags: %+v", rec.BlockingFlags)
	}
	if len(rec.BlockingTasks) != 1 || rec.BlockingTasks[0].ID != "t1" {
		t.Fatalf("blocking tasks: %+v", rec.BlockingTasks)
	}

	rec = closure.RecommendClosure(domain.CaseState{}, greenRisk(), today)
	if !rec.CanClose || rec.SuggestedType != domain.ClosureTasksCompletePendingSettlement {
		t.Fatalf("expected closable: %+v", rec)
	}
}

func TestRecommendClosureSDOHDoesNotBlock(t *testing.T) {
	state := domain.CaseState{Flags: []domain.Flag{
		{Severity: domain.SeverityModerate, Status: domain.FlagOpen, Type: "sdoh"},
	}}
	rec := closure.RecommendClosure(state, greenRisk(), today)
	if !rec.CanClose || len(rec.Reasons) != 2 {
		t.Fatalf("sdoh adds a reason but does not block: %+v", rec)
	}
}

func TestRecommendClosureRiskBlocks(t *testing.T) {
	if rec := closure.RecommendClosure(domain.CaseState{}, &domain.RiskSummary{VitalityScore: f64p(3.5)}, today); rec.CanClose {
		t.Fatalf("red vitality should block")
	}
	if rec := closure.RecommendClosure(domain.CaseState{}, &domain.RiskSummary{VigilanceRiskCategory: domain.VigilanceHigh}, today); rec.CanClose {
		t.Fatalf("high vigilance should block")
	}
	if rec := closure.RecommendClosure(domain.CaseState{}, nil, today); !rec.CanClose {
		t.Fatalf("defaults should allow closure: %+v", rec)
	}
}
