package lockdown_test

import (
	"reflect"
	"testing"
	"time"

	"caregate/internal/domain"
	"caregate/internal/lockdown"
)

var today = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func strp(s string) *string   { return &s }
func f64p(v float64) *float64 { return &v }
func codes(r domain.LockdownResult) []domain.IssueCode {
	out := make([]domain.IssueCode, 0, len(r.Issues))
	for _, i := range r.Issues {
		out = append(out, i.Code)
	}
	return out
}

func flag(id string, sev domain.FlagSeverity, status domain.FlagStatus) domain.Flag {
	return domain.Flag{ID: id, Type: "clinical", Label: id, Severity: sev, Status: status}
}

func task(id string, status domain.TaskStatus, due *string) domain.Task {
	return domain.Task{ID: id, Title: id, Status: status, DueDate: due}
}

func green() *domain.RiskSummary {
	return &domain.RiskSummary{VitalityScore: f64p(9), RAGStatus: domain.RAGGreen, VigilanceRiskCategory: domain.VigilanceLow}
}

var placeholders = []domain.IssueCode{
	domain.CodeMissingVeracityAttestation,
	domain.CodeMissingVerificationReview,
	domain.CodeMissingClientAck,
}

func TestEvaluateRules(t *testing.T) {
	cases := []struct {
		name       string
		state      domain.CaseState
		risk       *domain.RiskSummary
		canRelease bool
		level      domain.RiskLevel
		codes      []domain.IssueCode
	}{
		{
			name:       "empty case uses default vitality",
			canRelease: true,
			level:      domain.RiskModerate,
			codes:      append([]domain.IssueCode{domain.CodeLowVitality}, placeholders...),
		},
		{
			name:       "clean green case",
			risk:       green(),
			canRelease: true,
			level:      domain.RiskModerate,
			codes:      placeholders,
		},
		{
			name: "open critical flag blocks",
			state: domain.CaseState{Flags: []domain.Flag{
				flag("f1", domain.SeverityCritical, domain.FlagOpen),
			}},
			risk:       green(),
			canRelease: false,
			level:      domain.RiskHigh,
			codes:      append([]domain.IssueCode{domain.CodeOpenCriticalFlags}, placeholders...),
		},
		{
			name: "closed critical and open moderate flags do not block",
			state: domain.CaseState{Flags: []domain.Flag{
				flag("f1", domain.SeverityCritical, domain.FlagClosed),
				flag("f2", domain.SeverityModerate, domain.FlagOpen),
			}},
			risk:       green(),
			canRelease: true,
			level:      domain.RiskModerate,
			codes:      placeholders,
		},
		{
			name: "critical and high both reported in order",
			state: domain.CaseState{Flags: []domain.Flag{
				flag("f1", domain.SeverityHigh, domain.FlagOpen),
				flag("f2", domain.SeverityCritical, domain.FlagOpen),
			}},
			risk:       green(),
			canRelease: false,
			level:      domain.RiskHigh,
			codes:      append([]domain.IssueCode{domain.CodeOpenCriticalFlags, domain.CodeOpenHighFlags}, placeholders...),
		},
		{
			name:       "high vigilance blocks",
			risk:       &domain.RiskSummary{VitalityScore: f64p(8), VigilanceRiskCategory: domain.VigilanceHigh},
			canRelease: false,
			level:      domain.RiskHigh,
			codes:      append([]domain.IssueCode{domain.CodeUnresolvedVigilance}, placeholders...),
		},
		{
			name: "overdue open task blocks and warns",
			state: domain.CaseState{Tasks: []domain.Task{
				task("t1", domain.TaskOpen, strp("2025-03-09")),
			}},
			risk:       green(),
			canRelease: false,
			level:      domain.RiskHigh,
			codes:      append([]domain.IssueCode{domain.CodeOverdueTasks, domain.CodeOpenTasks}, placeholders...),
		},
		{
			name: "task due today is not overdue",
			state: domain.CaseState{Tasks: []domain.Task{
				task("t1", domain.TaskOpen, strp("2025-03-10")),
			}},
			risk:       green(),
			canRelease: true,
			level:      domain.RiskModerate,
			codes:      append([]domain.IssueCode{domain.CodeOpenTasks}, placeholders...),
		},
		{
			name: "completed past-due task is ignored",
			state: domain.CaseState{Tasks: []domain.Task{
				task("t1", domain.TaskCompleted, strp("2020-01-01")),
				task("t2", domain.TaskCancelled, nil),
			}},
			risk:       green(),
			canRelease: true,
			level:      domain.RiskModerate,
			codes:      placeholders,
		},
		{
			name: "open task without due date only warns",
			state: domain.CaseState{Tasks: []domain.Task{
				task("t1", domain.TaskOpen, nil),
				task("t2", domain.TaskOpen, strp("")),
			}},
			risk:       green(),
			canRelease: true,
			level:      domain.RiskModerate,
			codes:      append([]domain.IssueCode{domain.CodeOpenTasks}, placeholders...),
		},
		{
			name:       "vitality just below red boundary",
			risk:       &domain.RiskSummary{VitalityScore: f64p(3.99)},
			canRelease: false,
			level:      domain.RiskHigh,
			codes:      append([]domain.IssueCode{domain.CodeLowVitality}, placeholders...),
		},
		{
			name:       "vitality on red boundary is amber",
			risk:       &domain.RiskSummary{VitalityScore: f64p(4.0)},
			canRelease: true,
			level:      domain.RiskModerate,
			codes:      append([]domain.IssueCode{domain.CodeLowVitality}, placeholders...),
		},
		{
			name:       "vitality on green boundary",
			risk:       &domain.RiskSummary{VitalityScore: f64p(8.0)},
			canRelease: true,
			level:      domain.RiskModerate,
			codes:      placeholders,
		},
		{
			name:       "zero vitality is a real score",
			risk:       &domain.RiskSummary{VitalityScore: f64p(0)},
			canRelease: false,
			level:      domain.RiskHigh,
			codes:      append([]domain.IssueCode{domain.CodeLowVitality}, placeholders...),
		},
		{
			name: "everything at once keeps rule order",
			state: domain.CaseState{
				Flags: []domain.Flag{
					flag("f1", domain.SeverityCritical, domain.FlagOpen),
					flag("f2", domain.SeverityHigh, domain.FlagOpen),
				},
				Tasks: []domain.Task{task("t1", domain.TaskOpen, strp("2025-01-01"))},
			},
			risk:       &domain.RiskSummary{VitalityScore: f64p(2), VigilanceRiskCategory: domain.VigilanceHigh},
			canRelease: false,
			level:      domain.RiskHigh,
			codes: append([]domain.IssueCode{
				domain.CodeOpenCriticalFlags,
				domain.CodeOpenHighFlags,
				domain.CodeUnresolvedVigilance,
				domain.CodeOverdueTasks,
				domain.CodeLowVitality,
				domain.CodeOpenTasks,
			}, placeholders...),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := lockdown.Evaluate(tc.state, tc.risk, today)
			if got.CanRelease != tc.canRelease {
				t.Fatalf("canRelease: got %v want %v", got.CanRelease, tc.canRelease)
			}
			if got.RiskLevel != tc.level {
				t.Fatalf("riskLevel: got %s want %s", got.RiskLevel, tc.level)
			}
			if !reflect.DeepEqual(codes(got), tc.codes) {
				t.Fatalf("codes: got %v want %v", codes(got), tc.codes)
			}
		})
	}
}

func TestLowVitalitySeverity(t *testing.T) {
	red := lockdown.Evaluate(domain.CaseState{}, &domain.RiskSummary{VitalityScore: f64p(3.99)}, today)
	if red.Issues[0].Severity != domain.IssueBlock {
		t.Fatalf("expected BLOCK for red vitality, got %s", red.Issues[0].Severity)
	}
	amber := lockdown.Evaluate(domain.CaseState{}, &domain.RiskSummary{VitalityScore: f64p(7.9)}, today)
	if amber.Issues[0].Severity != domain.IssueWarn {
		t.Fatalf("expected WARN for amber vitality, got %s", amber.Issues[0].Severity)
	}
}

func TestVerdictConsistency(t *testing.T) {
	states := []domain.CaseState{
		{},
		{Flags: []domain.Flag{flag("a", domain.SeverityHigh, domain.FlagOpen)}},
		{Tasks: []domain.Task{task("a", domain.TaskOpen, strp("2000-01-01"))}},
	}
	for _, st := range states {
		r := lockdown.Evaluate(st, nil, today)
		blocked := len(lockdown.Blocking(r)) > 0
		if r.CanRelease == blocked {
			t.Fatalf("canRelease %v inconsistent with blocking issues %v", r.CanRelease, lockdown.Blocking(r))
		}
		if blocked && r.RiskLevel != domain.RiskHigh {
			t.Fatalf("blocked result must be HIGH, got %s", r.RiskLevel)
		}
		// placeholders always make at least one WARN, so LOW never appears
		if r.RiskLevel == domain.RiskLow {
			t.Fatalf("unexpected LOW")
		}
		if r.Issues == nil {
			t.Fatalf("issues must not be nil")
		}
	}
}

func TestVerdict(t *testing.T) {
	if r := lockdown.Verdict(nil); !r.CanRelease || r.RiskLevel != domain.RiskLow || r.Issues == nil {
		t.Fatalf("empty verdict: %+v", r)
	}
	info := []domain.Issue{{Code: domain.CodeOther, Severity: domain.IssueInfo}}
	if r := lockdown.Verdict(info); !r.CanRelease || r.RiskLevel != domain.RiskLow {
		t.Fatalf("info-only verdict: %+v", r)
	}
}

func TestEvaluateIsIdempotentAndDoesNotMutate(t *testing.T) {
	state := domain.CaseState{
		Flags: []domain.Flag{
			flag("f1", domain.SeverityHigh, domain.FlagOpen),
			{ID: "f2", Type: "Vigilance-Monitor", Severity: domain.SeverityLow, Status: domain.FlagOpen},
		},
		Tasks: []domain.Task{task("t1", domain.TaskOpen, strp("2025-03-01"))},
	}
	risk := &domain.RiskSummary{VitalityScore: f64p(6.5)}
	before := *risk
	first := lockdown.Evaluate(state, risk, today)
	second := lockdown.Evaluate(state, risk, today)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("evaluation not idempotent:\n%+v\n%+v", first, second)
	}
	if risk.RAGStatus != before.RAGStatus || risk.VigilanceRiskCategory != before.VigilanceRiskCategory || risk.Source != "" {
		t.Fatalf("risk input mutated: %+v", risk)
	}
	if *risk.VitalityScore != 6.5 {
		t.Fatalf("vitality mutated")
	}
	if state.Flags[0].Status != domain.FlagOpen || len(state.Flags) != 2 {
		t.Fatalf("flags mutated")
	}
}

func TestTodayUsesCallerLocation(t *testing.T) {
	// 2025-03-10 02:00 in UTC is still 2025-03-09 at UTC-5.
	loc := time.FixedZone("EST", -5*3600)
	utc := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	state := domain.CaseState{Tasks: []domain.Task{task("t1", domain.TaskOpen, strp("2025-03-09"))}}
	if r := lockdown.Evaluate(state, green(), utc); r.CanRelease {
		t.Fatalf("expected overdue in UTC")
	}
	if r := lockdown.Evaluate(state, green(), utc.In(loc)); !r.CanRelease {
		t.Fatalf("expected not overdue in EST: %v", codes(r))
	}
}

func TestEvaluatorUsesScorer(t *testing.T) {
	ev := lockdown.Evaluator{Scorer: lockdown.Chain(
		lockdown.Recorded,
		lockdown.ScorerFunc(func(domain.CaseState) *domain.RiskSummary {
			return &domain.RiskSummary{VitalityScore: f64p(1), Source: "fallback"}
		}),
	)}
	r := ev.Evaluate(domain.CaseState{}, today)
	if r.CanRelease {
		t.Fatalf("fallback scorer should have produced red vitality")
	}
	r = ev.Evaluate(domain.CaseState{Risk: green()}, today)
	if !r.CanRelease {
		t.Fatalf("recorded risk should win: %v", codes(r))
	}
	if r := (lockdown.Evaluator{}).Evaluate(domain.CaseState{}, today); !r.CanRelease || r.RiskLevel != domain.RiskModerate {
		t.Fatalf("nil scorer should use defaults: %+v", r)
	}
}

func TestResolveRisk(t *testing.T) {
	r := lockdown.ResolveRisk(nil)
	if *r.VitalityScore != lockdown.DefaultVitality || r.RAGStatus != domain.RAGAmber || r.VigilanceRiskCategory != domain.VigilanceModerate || r.Source != "default" {
		t.Fatalf("defaults: %+v", r)
	}
	in := &domain.RiskSummary{RAGStatus: domain.RAGRed, Source: "recorded"}
	r = lockdown.ResolveRisk(in)
	if r.RAGStatus != domain.RAGRed || *r.VitalityScore != 5 || r.Source != "recorded" {
		t.Fatalf("partial: %+v", r)
	}
	if in.VitalityScore != nil {
		t.Fatalf("input mutated")
	}
}

func TestSummarizeFlags(t *testing.T) {
	flags := []domain.Flag{
		{ID: "a", Type: "VIGILANCE", Severity: domain.SeverityLow, Status: domain.FlagOpen},
		{ID: "b", Type: "vigilance", Severity: domain.SeverityCritical, Status: domain.FlagClosed},
		flag("c", domain.SeverityCritical, domain.FlagOpen),
		flag("d", domain.SeverityHigh, domain.FlagOpen),
	}
	s := lockdown.SummarizeFlags(flags)
	if len(s.Open) != 3 || len(s.Critical) != 1 || len(s.High) != 1 || len(s.Vigilance) != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Open[0].ID != "a" || s.Open[2].ID != "d" {
		t.Fatalf("order not preserved: %+v", s.Open)
	}
}
