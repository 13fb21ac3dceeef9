package engine_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"caregate/internal/config"
	"caregate/internal/db"
	"caregate/internal/domain"
	"caregate/internal/engine"
	"caregate/internal/migrate"
	"caregate/internal/repo"
)

type recordingNotifier struct {
	mu   sync.Mutex
	runs []domain.LockdownRun
	err  error
}

func (n *recordingNotifier) PublishRun(_ context.Context, run domain.LockdownRun) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run)
	return n.err
}

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	Notifier *recordingNotifier
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	n := &recordingNotifier{}
	eng.Notifier = n
	ctx := context.Background()
	if err := eng.Repo.UpsertOrgConfig(ctx, "org-1", cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Notifier: n}
}

func (env testEnv) newCase(t *testing.T) domain.Case {
	t.Helper()
	c, err := env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{ClientName: "Jordan Lee", CaseType: "MVA", ActorID: "nurse"})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	return c
}

func (env testEnv) countEvents(t *testing.T, evtType string) int {
	t.Helper()
	var n int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM events WHERE type=?`, evtType).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func f64p(v float64) *float64 { return &v }

func TestCreateCaseAndLoadState(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	if c.ID == "" || c.OrgID != "org-1" || c.Status != domain.CaseActive {
		t.Fatalf("unexpected case: %+v", c)
	}
	if _, err := env.Engine.AddFlag(env.Ctx, engine.FlagCreateOptions{CaseID: c.ID, Type: "Clinical", Label: "Fall risk", Severity: "High", ActorID: "nurse"}); err != nil {
		t.Fatalf("add flag: %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{CaseID: c.ID, Title: "Call PCP", DueDate: "2024-04-01", ActorID: "nurse"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	state, err := env.Engine.LoadState(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if len(state.Flags) != 1 || len(state.Tasks) != 1 {
		t.Fatalf("expected one flag and one task, got %d/%d", len(state.Flags), len(state.Tasks))
	}
	if state.Risk != nil || state.Assessment != nil {
		t.Fatalf("expected no risk or assessment yet")
	}
	if _, err := env.Engine.LoadState(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if n := env.countEvents(t, "case.created"); n != 1 {
		t.Fatalf("expected case.created event, got %d", n)
	}
}

func TestAddFlagValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	if _, err := env.Engine.AddFlag(env.Ctx, engine.FlagCreateOptions{CaseID: c.ID, Type: "Clinical", Label: "x", Severity: "Severe"}); err == nil {
		t.Fatalf("expected invalid severity error")
	}
	if _, err := env.Engine.AddFlag(env.Ctx, engine.FlagCreateOptions{CaseID: c.ID, Label: "x", Severity: "Low"}); err == nil {
		t.Fatalf("expected missing type error")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{CaseID: c.ID, Title: "t", DueDate: "04/01/2024"}); err == nil {
		t.Fatalf("expected bad due date error")
	}
}

func TestResolveFlag(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	f, err := env.Engine.AddFlag(env.Ctx, engine.FlagCreateOptions{CaseID: c.ID, Type: "SDOH", Label: "Transport", Severity: "Moderate", ActorID: "nurse"})
	if err != nil {
		t.Fatal(err)
	}
	f, err = env.Engine.ResolveFlag(env.Ctx, f.ID, "nurse")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if f.Status != domain.FlagClosed || f.ResolvedAt == nil {
		t.Fatalf("expected closed flag with resolution time: %+v", f)
	}
	if _, err := env.Engine.ResolveFlag(env.Ctx, f.ID, "nurse"); err == nil {
		t.Fatalf("expected error resolving twice")
	}
	open, err := env.Engine.ListFlags(env.Ctx, c.ID, domain.FlagOpen)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open flags, got %d", len(open))
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{CaseID: c.ID, Title: "Obtain records", ActorID: "nurse"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	task, err = env.Engine.SetTaskStatus(env.Ctx, task.ID, domain.TaskCompleted, "nurse")
	if err != nil || task.Status != domain.TaskCompleted {
		t.Fatalf("to completed: %v", err)
	}
	if _, err := env.Engine.SetTaskStatus(env.Ctx, task.ID, domain.TaskCancelled, "nurse"); err == nil {
		t.Fatalf("expected completed -> cancelled to fail")
	}
	task, err = env.Engine.SetTaskStatus(env.Ctx, task.ID, domain.TaskOpen, "nurse")
	if err != nil || task.Status != domain.TaskOpen {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := env.Engine.SetTaskStatus(env.Ctx, task.ID, "Done", "nurse"); err == nil {
		t.Fatalf("expected invalid status error")
	}
	if n := env.countEvents(t, "task.status_changed"); n != 2 {
		t.Fatalf("expected 2 status events, got %d", n)
	}
}

func TestEvaluateLockdownPersistsRun(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	if _, err := env.Engine.AddFlag(env.Ctx, engine.FlagCreateOptions{CaseID: c.ID, Type: "Clinical", Label: "Sepsis", Severity: "Critical", ActorID: "nurse"}); err != nil {
		t.Fatal(err)
	}
	run, err := env.Engine.EvaluateLockdown(env.Ctx, c.ID, "nurse")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if run.Result.CanRelease || run.Result.RiskLevel != domain.RiskHigh {
		t.Fatalf("expected blocked HIGH run, got %+v", run.Result)
	}
	if run.EvaluatedOn != "2024-03-15" {
		t.Fatalf("expected evaluated_on 2024-03-15, got %s", run.EvaluatedOn)
	}
	if run.Result.Issues[0].Code != domain.CodeOpenCriticalFlags {
		t.Fatalf("expected critical flag issue first, got %s", run.Result.Issues[0].Code)
	}
	if run.Risk.Source != "default" {
		t.Fatalf("expected default risk, got %q", run.Risk.Source)
	}
	runs, err := env.Engine.ListLockdownRuns(env.Ctx, c.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID || len(runs[0].Result.Issues) != len(run.Result.Issues) {
		t.Fatalf("stored run mismatch: %+v", runs)
	}
	if len(env.Notifier.runs) != 1 || env.Notifier.runs[0].ID != run.ID {
		t.Fatalf("expected run published once")
	}
	if n := env.countEvents(t, "lockdown.evaluated"); n != 1 {
		t.Fatalf("expected lockdown.evaluated event, got %d", n)
	}
}

func TestOverdueTaskBlocks(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{CaseID: c.ID, Title: "Due today", DueDate: "2024-03-15"}); err != nil {
		t.Fatal(err)
	}
	run, err := env.Engine.EvaluateLockdown(env.Ctx, c.ID, "nurse")
	if err != nil {
		t.Fatal(err)
	}
	if !run.Result.CanRelease {
		t.Fatalf("task due today must not block: %+v", run.Result.Issues)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{CaseID: c.ID, Title: "Late", DueDate: "2024-03-14"}); err != nil {
		t.Fatal(err)
	}
	run, err = env.Engine.EvaluateLockdown(env.Ctx, c.ID, "nurse")
	if err != nil {
		t.Fatal(err)
	}
	if run.Result.CanRelease {
		t.Fatalf("expected overdue task to block")
	}
}

func TestOverdueUsesUTCDate(t *testing.T) {
	env := newTestEnv(t)
	west := time.FixedZone("UTC-5", -5*60*60)
	env.Engine.Now = func() time.Time { return time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC).In(west) }
	c := env.newCase(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{CaseID: c.ID, Title: "Late", DueDate: "2024-03-14"}); err != nil {
		t.Fatal(err)
	}
	run, err := env.Engine.EvaluateLockdown(env.Ctx, c.ID, "nurse")
	if err != nil {
		t.Fatal(err)
	}
	if run.EvaluatedOn != "2024-03-15" || run.CreatedAt != "2024-03-15T02:00:00Z" {
		t.Fatalf("expected UTC dates, got evaluated_on=%s created_at=%s", run.EvaluatedOn, run.CreatedAt)
	}
	if run.Result.CanRelease {
		t.Fatalf("task due before the UTC date must block: %+v", run.Result.Issues)
	}
	found := false
	for _, is := range run.Result.Issues {
		if is.Code == domain.CodeOverdueTasks {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected OVERDUE_TASKS, got %+v", run.Result.Issues)
	}
	snap, err := env.Engine.AuditSnapshot(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.EvaluatedOn != "2024-03-15" {
		t.Fatalf("audit snapshot date %s", snap.EvaluatedOn)
	}
}

func TestNotifierFailureKeepsRun(t *testing.T) {
	env := newTestEnv(t)
	env.Notifier.err = errors.New("redis down")
	core, logs := observer.New(zap.WarnLevel)
	env.Engine.Log = zap.New(core)
	c := env.newCase(t)
	run, err := env.Engine.EvaluateLockdown(env.Ctx, c.ID, "nurse")
	if err != nil {
		t.Fatalf("evaluate should not fail on publish error: %v", err)
	}
	if n := logs.FilterMessage("publish lockdown run").Len(); n != 1 || logs.Len() != 1 {
		t.Fatalf("expected a single publish warning, got %d of %d entries", n, logs.Len())
	}
	runs, err := env.Engine.ListLockdownRuns(env.Ctx, c.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("expected run to be stored")
	}
}

func TestReleaseAllowed(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	if _, err := env.Engine.RecordRisk(env.Ctx, c.ID, domain.RiskSummary{
		VitalityScore:         f64p(9),
		RAGStatus:             domain.RAGGreen,
		VigilanceRiskCategory: domain.VigilanceLow,
	}, "nurse"); err != nil {
		t.Fatalf("record risk: %v", err)
	}
	if _, err := env.Engine.ReleaseReport(env.Ctx, engine.ReleaseOptions{CaseID: c.ID, ReportKind: "unknown_report", ActorID: "nurse"}); err == nil {
		t.Fatalf("expected unknown report kind error")
	}
	rel, err := env.Engine.ReleaseReport(env.Ctx, engine.ReleaseOptions{CaseID: c.ID, ReportKind: "attorney_summary", ActorID: "nurse"})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if rel.Overridden || rel.RunID == "" {
		t.Fatalf("unexpected release: %+v", rel)
	}
	rels, err := env.Engine.ListReleases(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 1 || rels[0].ID != rel.ID {
		t.Fatalf("expected stored release, got %+v", rels)
	}
	if n := env.countEvents(t, "release.created"); n != 1 {
		t.Fatalf("expected release.created event, got %d", n)
	}
}

func TestReleaseBlockedAndOverride(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	if _, err := env.Engine.AddFlag(env.Ctx, engine.FlagCreateOptions{CaseID: c.ID, Type: "Safety", Label: "Unsafe home", Severity: "Critical"}); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.ReleaseReport(env.Ctx, engine.ReleaseOptions{CaseID: c.ID, ReportKind: "attorney_summary", ActorID: "nurse"})
	var blocked *engine.ReleaseBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected ReleaseBlockedError, got %v", err)
	}
	if blocked.RunID == "" || len(blocked.Issues) != 1 || blocked.Issues[0].Code != domain.CodeOpenCriticalFlags {
		t.Fatalf("unexpected blocked error: %+v", blocked)
	}

	_, err = env.Engine.ReleaseReport(env.Ctx, engine.ReleaseOptions{CaseID: c.ID, ReportKind: "attorney_summary", Override: true, OverrideReason: "court order", ActorID: "nurse"})
	if !errors.Is(err, engine.ErrOverrideNotAllowed) {
		t.Fatalf("expected override disabled, got %v", err)
	}
	env.Engine.Config.Release.AllowOverride = true
	if _, err := env.Engine.ReleaseReport(env.Ctx, engine.ReleaseOptions{CaseID: c.ID, ReportKind: "attorney_summary", Override: true, ActorID: "nurse"}); err == nil {
		t.Fatalf("expected missing reason error")
	}
	rel, err := env.Engine.ReleaseReport(env.Ctx, engine.ReleaseOptions{CaseID: c.ID, ReportKind: "attorney_summary", Override: true, OverrideReason: "court order", ActorID: "supervisor"})
	if err != nil {
		t.Fatalf("override release: %v", err)
	}
	if !rel.Overridden || rel.OverrideReason != "court order" {
		t.Fatalf("expected overridden release: %+v", rel)
	}
	if n := env.countEvents(t, "release.override"); n != 1 {
		t.Fatalf("expected one override event, got %d", n)
	}
	runs, err := env.Engine.ListLockdownRuns(env.Ctx, c.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected refused and overridden runs stored, got %d", len(runs))
	}
}

func TestScoringModes(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	if _, err := env.Engine.RecordRisk(env.Ctx, c.ID, domain.RiskSummary{VitalityScore: f64p(2)}, "nurse"); err != nil {
		t.Fatal(err)
	}
	run, err := env.Engine.EvaluateLockdown(env.Ctx, c.ID, "nurse")
	if err != nil {
		t.Fatal(err)
	}
	if run.Risk.Source != "manual" || run.Result.CanRelease {
		t.Fatalf("expected recorded red vitality to block, got source %q can_release %v", run.Risk.Source, run.Result.CanRelease)
	}
	if run.Risk.RAGStatus != domain.RAGAmber {
		t.Fatalf("missing RAG should default to Amber, got %s", run.Risk.RAGStatus)
	}

	env.Engine.Config.Scoring.Mode = config.ScoringTenVs
	run, err = env.Engine.EvaluateLockdown(env.Ctx, c.ID, "nurse")
	if err != nil {
		t.Fatal(err)
	}
	if run.Risk.Source != "default" {
		t.Fatalf("tenvs mode without assessment should use defaults, got %q", run.Risk.Source)
	}
	if _, err := env.Engine.RecordAssessment(env.Ctx, domain.Assessment{CaseID: c.ID, Goals: []string{"return to work"}}, "nurse"); err != nil {
		t.Fatalf("record assessment: %v", err)
	}
	run, err = env.Engine.EvaluateLockdown(env.Ctx, c.ID, "nurse")
	if err != nil {
		t.Fatal(err)
	}
	if run.Risk.Source != "tenvs" {
		t.Fatalf("expected tenvs risk, got %q", run.Risk.Source)
	}
}

func TestRecordRiskValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	cases := []domain.RiskSummary{
		{VitalityScore: f64p(11)},
		{VitalityScore: f64p(-1)},
		{VitalityScore: f64p(math.NaN())},
		{VitalityScore: f64p(math.Inf(1))},
		{RAGStatus: "Purple"},
		{VigilanceRiskCategory: "Extreme"},
	}
	for _, rs := range cases {
		if _, err := env.Engine.RecordRisk(env.Ctx, c.ID, rs, "nurse"); err == nil {
			t.Fatalf("expected validation error for %+v", rs)
		}
	}
	pain := 12
	if _, err := env.Engine.RecordAssessment(env.Ctx, domain.Assessment{CaseID: c.ID, FourPs: domain.FourPs{Physical: domain.Physical{PainScore: &pain}}}, "nurse"); err == nil {
		t.Fatalf("expected pain score validation error")
	}
}

func TestCloseCase(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{CaseID: c.ID, Title: "Final call"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CloseCase(env.Ctx, engine.CloseOptions{CaseID: c.ID, Type: string(domain.ClosureFinalizedSettlement), ActorID: "nurse"})
	var blocked *engine.ClosureBlockedError
	if !errors.As(err, &blocked) || len(blocked.Recommendation.BlockingTasks) != 1 {
		t.Fatalf("expected closure blocked by open task, got %v", err)
	}
	if _, err := env.Engine.CloseCase(env.Ctx, engine.CloseOptions{CaseID: c.ID, Type: string(domain.ClosureAdministrative), Force: true}); err == nil {
		t.Fatalf("expected admin reason required")
	}
	if _, err := env.Engine.SetTaskStatus(env.Ctx, task.ID, domain.TaskCompleted, "nurse"); err != nil {
		t.Fatal(err)
	}
	rec, err := env.Engine.RecommendClosure(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.CanClose || rec.SuggestedType != domain.ClosureTasksCompletePendingSettlement {
		t.Fatalf("expected closable case: %+v", rec)
	}
	closed, err := env.Engine.CloseCase(env.Ctx, engine.CloseOptions{CaseID: c.ID, Type: string(rec.SuggestedType), ActorID: "nurse"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.CaseClosed || closed.ClosureType != domain.ClosureTasksCompletePendingSettlement {
		t.Fatalf("unexpected closed case: %+v", closed)
	}
	if _, err := env.Engine.AddFlag(env.Ctx, engine.FlagCreateOptions{CaseID: c.ID, Type: "Clinical", Label: "late", Severity: "Low"}); !errors.Is(err, engine.ErrCaseClosed) {
		t.Fatalf("expected ErrCaseClosed, got %v", err)
	}
	if _, err := env.Engine.UpdateCaseStatus(env.Ctx, c.ID, domain.CaseClosed, "nurse"); err == nil {
		t.Fatalf("expected error closing through status update")
	}
	reopened, err := env.Engine.UpdateCaseStatus(env.Ctx, c.ID, domain.CaseActive, "nurse")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != domain.CaseActive || reopened.ClosureType != "" {
		t.Fatalf("unexpected reopened case: %+v", reopened)
	}
}

func TestSeverityAndAudit(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	for _, typ := range []string{"Clinical", "Clinical"} {
		if _, err := env.Engine.AddFlag(env.Ctx, engine.FlagCreateOptions{CaseID: c.ID, Type: typ, Label: "x", Severity: "High"}); err != nil {
			t.Fatal(err)
		}
	}
	sev, err := env.Engine.AssessSeverity(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sev.Level != 4 {
		t.Fatalf("expected level 4 with two high flags, got %d", sev.Level)
	}
	snap, err := env.Engine.AuditSnapshot(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Counts.HighFlags != 2 || snap.Lockdown.CanRelease {
		t.Fatalf("unexpected snapshot: %+v", snap.Counts)
	}
	data, err := env.Engine.ExportAudit(env.Ctx, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected workbook bytes")
	}
}

func TestUpdateAndDeleteCase(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCase(t)
	name := "Jordan A. Lee"
	c, err := env.Engine.UpdateCase(env.Ctx, engine.CaseUpdateOptions{ID: c.ID, ClientName: &name, ActorID: "nurse"})
	if err != nil {
		t.Fatal(err)
	}
	if c.ClientName != name {
		t.Fatalf("expected renamed client, got %s", c.ClientName)
	}
	if err := env.Engine.DeleteCase(env.Ctx, c.ID, "nurse"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetCase(env.Ctx, c.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestImportConfig(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default("org-1")
	cfg.Scoring.Mode = config.ScoringTenVs
	if err := env.Engine.ImportConfig(env.Ctx, cfg, "admin"); err != nil {
		t.Fatalf("import: %v", err)
	}
	stored, err := env.Engine.Repo.GetOrgConfig(env.Ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Scoring.Mode != config.ScoringTenVs {
		t.Fatalf("expected tenvs mode stored, got %s", stored.Scoring.Mode)
	}
	if n := env.countEvents(t, "config.imported"); n != 1 {
		t.Fatalf("expected config.imported event, got %d", n)
	}
}
