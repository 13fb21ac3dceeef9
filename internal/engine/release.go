package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caregate/internal/audit"
	"caregate/internal/closure"
	"caregate/internal/domain"
	"caregate/internal/events"
	"caregate/internal/lockdown"
	"caregate/internal/repo"
)

// ReleaseBlockedError reports the blocking issues of the run that refused a release.
type ReleaseBlockedError struct {
	RunID  string
	Issues []domain.Issue
}

func (e *ReleaseBlockedError) Error() string {
	codes := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		codes = append(codes, string(is.Code))
	}
	return fmt.Sprintf("release blocked by %s", strings.Join(codes, ", "))
}

// ClosureBlockedError carries the recommendation that refused a closure.
type ClosureBlockedError struct {
	Recommendation closure.Recommendation
}

func (e *ClosureBlockedError) Error() string {
	return "case not ready for closure: " + strings.Join(e.Recommendation.Reasons, " ")
}

var ErrOverrideNotAllowed = errors.New("release override is disabled for this org")

// EvaluateLockdown runs the release gate for a case, stores the run and
// appends a lockdown.evaluated event. The run is then published to the
// notifier; a publish failure is logged and does not undo the run.
func (e Engine) EvaluateLockdown(ctx context.Context, caseID, actorID string) (domain.LockdownRun, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LockdownRun{}, err
	}
	defer tx.Rollback()
	run, err := e.evaluateTx(ctx, tx, caseID, actorID)
	if err != nil {
		return domain.LockdownRun{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LockdownRun{}, err
	}
	e.publish(ctx, run)
	return run, nil
}

// PreviewLockdown evaluates the gate without storing a run or appending an event.
func (e Engine) PreviewLockdown(ctx context.Context, caseID string) (domain.LockdownPreview, error) {
	state, err := e.LoadState(ctx, caseID)
	if err != nil {
		return domain.LockdownPreview{}, err
	}
	return e.preview(state), nil
}

func (e Engine) preview(state domain.CaseState) domain.LockdownPreview {
	today := e.today()
	risk := e.Scorer().Score(state)
	return domain.LockdownPreview{
		CaseID:      state.Case.ID,
		EvaluatedOn: today.Format(lockdown.DateLayout),
		Result:      lockdown.Evaluate(state, risk, today),
		Risk:        lockdown.ResolveRisk(risk),
	}
}

func (e Engine) evaluateTx(ctx context.Context, tx *sql.Tx, caseID, actorID string) (domain.LockdownRun, error) {
	state, err := e.loadState(ctx, tx, caseID)
	if err != nil {
		return domain.LockdownRun{}, err
	}
	p := e.preview(state)
	run := domain.LockdownRun{
		ID:          uuid.NewString(),
		CaseID:      caseID,
		EvaluatedOn: p.EvaluatedOn,
		Result:      p.Result,
		Risk:        p.Risk,
		ActorID:     actorID,
		CreatedAt:   e.stamp(),
	}
	if err := e.Repo.InsertLockdownRun(ctx, tx, run); err != nil {
		return domain.LockdownRun{}, fmt.Errorf("insert lockdown run: %w", err)
	}
	blocking := []string{}
	for _, is := range lockdown.Blocking(run.Result) {
		blocking = append(blocking, string(is.Code))
	}
	if err := e.Events.Append(ctx, tx, events.LockdownEvaluated, state.Case.OrgID, "case", caseID, actorID, events.EventPayload{
		"run_id":      run.ID,
		"can_release": run.Result.CanRelease,
		"risk_level":  run.Result.RiskLevel,
		"issues":      len(run.Result.Issues),
		"blocking":    blocking,
		"risk_source": run.Risk.Source,
	}); err != nil {
		return domain.LockdownRun{}, err
	}
	return run, nil
}

func (e Engine) publish(ctx context.Context, run domain.LockdownRun) {
	log := e.log().With(zap.String("case_id", run.CaseID), zap.String("run_id", run.ID))
	log.Info("lockdown evaluated",
		zap.Bool("can_release", run.Result.CanRelease),
		zap.String("risk_level", string(run.Result.RiskLevel)),
		zap.Int("issues", len(run.Result.Issues)))
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.PublishRun(ctx, run); err != nil {
		log.Warn("publish lockdown run", zap.Error(err))
	}
}

func (e Engine) ListLockdownRuns(ctx context.Context, caseID string, limit int) ([]domain.LockdownRun, error) {
	if _, err := e.getCase(ctx, nil, caseID); err != nil {
		return nil, err
	}
	return e.Repo.ListLockdownRuns(ctx, caseID, limit)
}

// ReleaseOptions describe an external report release request.
type ReleaseOptions struct {
	CaseID         string
	ReportKind     string
	Override       bool
	OverrideReason string
	ActorID        string
}

// ReleaseReport evaluates the gate and records the release when it passes.
// A blocked case is released only with Override set, a reason given and
// release.allow_override enabled.
func (e Engine) ReleaseReport(ctx context.Context, opts ReleaseOptions) (domain.Release, error) {
	if e.Config == nil {
		return domain.Release{}, errors.New("config not loaded")
	}
	if !e.Config.ReportKindAllowed(opts.ReportKind) {
		return domain.Release{}, fmt.Errorf("report kind %q not allowed; configured: %s", opts.ReportKind, strings.Join(e.Config.Release.ReportKinds, ", "))
	}
	reason := strings.TrimSpace(opts.OverrideReason)
	if opts.Override {
		if !e.Config.Release.AllowOverride {
			return domain.Release{}, ErrOverrideNotAllowed
		}
		if reason == "" {
			return domain.Release{}, errors.New("override reason is required")
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Release{}, err
	}
	defer tx.Rollback()
	run, err := e.evaluateTx(ctx, tx, opts.CaseID, opts.ActorID)
	if err != nil {
		return domain.Release{}, err
	}
	if !run.Result.CanRelease && !opts.Override {
		// keep the refused run on record
		if err := tx.Commit(); err != nil {
			return domain.Release{}, err
		}
		e.publish(ctx, run)
		return domain.Release{}, &ReleaseBlockedError{RunID: run.ID, Issues: lockdown.Blocking(run.Result)}
	}
	rel := domain.Release{
		ID:         uuid.NewString(),
		CaseID:     opts.CaseID,
		ReportKind: opts.ReportKind,
		RunID:      run.ID,
		Overridden: !run.Result.CanRelease,
		ActorID:    opts.ActorID,
		CreatedAt:  e.stamp(),
	}
	if rel.Overridden {
		rel.OverrideReason = reason
	}
	if err := e.Repo.InsertRelease(ctx, tx, rel); err != nil {
		return domain.Release{}, fmt.Errorf("insert release: %w", err)
	}
	org := e.orgID()
	if err := e.Events.Append(ctx, tx, events.ReportReleased, org, "case", rel.CaseID, opts.ActorID, events.EventPayload{
		"release_id":  rel.ID,
		"report_kind": rel.ReportKind,
		"run_id":      run.ID,
		"overridden":  rel.Overridden,
	}); err != nil {
		return domain.Release{}, err
	}
	if rel.Overridden {
		codes := []string{}
		for _, is := range lockdown.Blocking(run.Result) {
			codes = append(codes, string(is.Code))
		}
		if err := e.Events.Append(ctx, tx, events.ReleaseOverride, org, "case", rel.CaseID, opts.ActorID, events.EventPayload{
			"release_id": rel.ID,
			"run_id":     run.ID,
			"reason":     reason,
			"blocking":   codes,
		}); err != nil {
			return domain.Release{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Release{}, err
	}
	e.publish(ctx, run)
	if rel.Overridden {
		e.log().Warn("release override", zap.String("case_id", rel.CaseID), zap.String("release_id", rel.ID), zap.String("actor_id", rel.ActorID))
	}
	return rel, nil
}

func (e Engine) ListReleases(ctx context.Context, caseID string) ([]domain.Release, error) {
	if _, err := e.getCase(ctx, nil, caseID); err != nil {
		return nil, err
	}
	return e.Repo.ListReleases(ctx, caseID)
}

func (e Engine) AssessSeverity(ctx context.Context, caseID string) (closure.SeverityAssessment, error) {
	state, err := e.LoadState(ctx, caseID)
	if err != nil {
		return closure.SeverityAssessment{}, err
	}
	return closure.AssessSeverity(state, e.Scorer().Score(state), e.today()), nil
}

func (e Engine) RecommendClosure(ctx context.Context, caseID string) (closure.Recommendation, error) {
	state, err := e.LoadState(ctx, caseID)
	if err != nil {
		return closure.Recommendation{}, err
	}
	return closure.RecommendClosure(state, e.Scorer().Score(state), e.today()), nil
}

// CloseOptions are parameters for closing a case.
type CloseOptions struct {
	CaseID      string
	Type        string
	AdminReason string
	Note        string
	Force       bool
	ActorID     string
}

// CloseCase closes an active case. Unless forced, the closure recommendation
// must allow it. Administrative closures require a reason.
func (e Engine) CloseCase(ctx context.Context, opts CloseOptions) (domain.Case, error) {
	var reason domain.AdminClosureReason
	ct, err := domain.ParseClosureType(opts.Type)
	if err != nil {
		return domain.Case{}, err
	}
	if ct == domain.ClosureAdministrative {
		if reason, err = domain.ParseAdminClosureReason(opts.AdminReason); err != nil {
			return domain.Case{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()
	state, err := e.loadState(ctx, tx, opts.CaseID)
	if err != nil {
		return domain.Case{}, err
	}
	if state.Case.Status == domain.CaseClosed {
		return domain.Case{}, ErrCaseClosed
	}
	rec := closure.RecommendClosure(state, e.Scorer().Score(state), e.today())
	if !rec.CanClose && !opts.Force {
		return domain.Case{}, &ClosureBlockedError{Recommendation: rec}
	}
	c := state.Case
	c.Status = domain.CaseClosed
	c.ClosureType = ct
	c.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateCase(ctx, tx, c); err != nil {
		return domain.Case{}, err
	}
	if err := e.Events.Append(ctx, tx, events.CaseClosed, c.OrgID, "case", c.ID, opts.ActorID, events.EventPayload{
		"closure_type": ct,
		"admin_reason": reason,
		"note":         opts.Note,
		"forced":       opts.Force && !rec.CanClose,
		"reasons":      rec.Reasons,
	}); err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

func (e Engine) AuditSnapshot(ctx context.Context, caseID string) (audit.Snapshot, error) {
	state, err := e.LoadState(ctx, caseID)
	if err != nil {
		return audit.Snapshot{}, err
	}
	return audit.Build(state, e.Scorer(), e.today()), nil
}

// AuditSnapshots builds a snapshot for every org case, optionally filtered by status.
func (e Engine) AuditSnapshots(ctx context.Context, status string) ([]audit.Snapshot, error) {
	cases, err := e.Repo.ListCases(ctx, repo.CaseFilters{OrgID: e.orgID(), Status: status})
	if err != nil {
		return nil, err
	}
	snaps := make([]audit.Snapshot, 0, len(cases))
	for _, c := range cases {
		snap, err := e.AuditSnapshot(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("audit %s: %w", c.ID, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (e Engine) ExportAudit(ctx context.Context, status string) ([]byte, error) {
	snaps, err := e.AuditSnapshots(ctx, status)
	if err != nil {
		return nil, err
	}
	return audit.ExportXLSX(snaps)
}
