package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"caregate/internal/domain"
	"caregate/internal/events"
	"caregate/internal/lockdown"
)

// FlagCreateOptions are parameters for raising a clinical flag.
type FlagCreateOptions struct {
	ID          string
	CaseID      string
	Type        string
	Label       string
	Description string
	Severity    string
	ActorID     string
}

func (e Engine) AddFlag(ctx context.Context, opts FlagCreateOptions) (domain.Flag, error) {
	if strings.TrimSpace(opts.Type) == "" {
		return domain.Flag{}, errors.New("flag type is required")
	}
	if strings.TrimSpace(opts.Label) == "" {
		return domain.Flag{}, errors.New("flag label is required")
	}
	sev, err := domain.ParseFlagSeverity(opts.Severity)
	if err != nil {
		return domain.Flag{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Flag{}, err
	}
	defer tx.Rollback()
	c, err := e.activeCase(ctx, tx, opts.CaseID)
	if err != nil {
		return domain.Flag{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	f := domain.Flag{
		ID:          id,
		CaseID:      c.ID,
		Type:        strings.TrimSpace(opts.Type),
		Label:       strings.TrimSpace(opts.Label),
		Description: opts.Description,
		Severity:    sev,
		Status:      domain.FlagOpen,
		CreatedAt:   e.stamp(),
	}
	if err := e.Repo.InsertFlag(ctx, tx, f); err != nil {
		return domain.Flag{}, fmt.Errorf("insert flag: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.FlagAdded, c.OrgID, "flag", f.ID, opts.ActorID, events.EventPayload{
		"case_id":  c.ID,
		"type":     f.Type,
		"severity": f.Severity,
	}); err != nil {
		return domain.Flag{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Flag{}, err
	}
	return f, nil
}

// ResolveFlag closes an open flag and stamps its resolution time.
func (e Engine) ResolveFlag(ctx context.Context, id, actorID string) (domain.Flag, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Flag{}, err
	}
	defer tx.Rollback()
	f, err := e.Repo.GetFlag(ctx, tx, id)
	if err != nil {
		return domain.Flag{}, err
	}
	c, err := e.getCase(ctx, tx, f.CaseID)
	if err != nil {
		return domain.Flag{}, err
	}
	if f.Status == domain.FlagClosed {
		return domain.Flag{}, fmt.Errorf("flag %s already closed", id)
	}
	resolved := e.stamp()
	if err := e.Repo.UpdateFlagStatus(ctx, tx, id, domain.FlagClosed, &resolved); err != nil {
		return domain.Flag{}, err
	}
	f.Status = domain.FlagClosed
	f.ResolvedAt = &resolved
	if err := e.Events.Append(ctx, tx, events.FlagResolved, c.OrgID, "flag", f.ID, actorID, events.EventPayload{
		"case_id":  f.CaseID,
		"severity": f.Severity,
	}); err != nil {
		return domain.Flag{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Flag{}, err
	}
	return f, nil
}

func (e Engine) ListFlags(ctx context.Context, caseID string, status domain.FlagStatus) ([]domain.Flag, error) {
	if _, err := e.getCase(ctx, nil, caseID); err != nil {
		return nil, err
	}
	return e.Repo.ListFlags(ctx, nil, caseID, status)
}

// TaskCreateOptions are parameters for creating a case task.
type TaskCreateOptions struct {
	ID         string
	CaseID     string
	Type       string
	Title      string
	DueDate    string
	AssignedTo string
	ActorID    string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Type == "" {
		opts.Type = "general"
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.DueDate != "" {
		if _, err := time.Parse(lockdown.DateLayout, opts.DueDate); err != nil {
			return domain.Task{}, fmt.Errorf("due date must be YYYY-MM-DD: %w", err)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	c, err := e.activeCase(ctx, tx, opts.CaseID)
	if err != nil {
		return domain.Task{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.Task{
		ID:         id,
		CaseID:     c.ID,
		Type:       opts.Type,
		Title:      strings.TrimSpace(opts.Title),
		DueDate:    optionalString(opts.DueDate),
		Status:     domain.TaskOpen,
		CreatedAt:  e.stamp(),
		AssignedTo: optionalString(opts.AssignedTo),
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskCreated, c.OrgID, "task", t.ID, opts.ActorID, events.EventPayload{
		"case_id":  c.ID,
		"type":     t.Type,
		"due_date": opts.DueDate,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func ensureTaskTransition(oldStatus, newStatus domain.TaskStatus) error {
	if !newStatus.Valid() {
		return fmt.Errorf("invalid task status %q", newStatus)
	}
	if oldStatus == newStatus {
		return fmt.Errorf("task already %s", newStatus)
	}
	allowed := map[domain.TaskStatus][]domain.TaskStatus{
		domain.TaskOpen:      {domain.TaskCompleted, domain.TaskCancelled},
		domain.TaskCompleted: {domain.TaskOpen},
		domain.TaskCancelled: {domain.TaskOpen},
	}
	for _, st := range allowed[oldStatus] {
		if st == newStatus {
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", oldStatus, newStatus)
}

func (e Engine) SetTaskStatus(ctx context.Context, id string, status domain.TaskStatus, actorID string) (domain.Task, error) {
	status, err := domain.ParseTaskStatus(string(status))
	if err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTask(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c, err := e.getCase(ctx, tx, t.CaseID)
	if err != nil {
		return domain.Task{}, err
	}
	if status == domain.TaskOpen && c.Status == domain.CaseClosed {
		return domain.Task{}, ErrCaseClosed
	}
	if err := ensureTaskTransition(t.Status, status); err != nil {
		return domain.Task{}, err
	}
	from := t.Status
	if err := e.Repo.UpdateTaskStatus(ctx, tx, id, status, e.stamp()); err != nil {
		return domain.Task{}, err
	}
	t.Status = status
	if err := e.Events.Append(ctx, tx, events.TaskStatusChanged, c.OrgID, "task", t.ID, actorID, events.EventPayload{
		"case_id": t.CaseID,
		"from":    from,
		"to":      status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) ListTasks(ctx context.Context, caseID string, status domain.TaskStatus) ([]domain.Task, error) {
	if _, err := e.getCase(ctx, nil, caseID); err != nil {
		return nil, err
	}
	return e.Repo.ListTasks(ctx, nil, caseID, status)
}

// normalizeRisk checks ranges and folds RAG and vigilance values to their canonical case.
func normalizeRisk(rs *domain.RiskSummary) error {
	if v := rs.VitalityScore; v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 || *v > 10) {
		return fmt.Errorf("vitality score must be between 0 and 10, got %v", *v)
	}
	if rs.RAGStatus != "" {
		rag, err := domain.ParseRAGStatus(string(rs.RAGStatus))
		if err != nil {
			return err
		}
		rs.RAGStatus = rag
	}
	if rs.VigilanceRiskCategory != "" {
		cat, err := domain.ParseVigilanceCategory(string(rs.VigilanceRiskCategory))
		if err != nil {
			return err
		}
		rs.VigilanceRiskCategory = cat
	}
	return nil
}

// RecordRisk stores the externally scored risk summary for a case.
// Absent fields stay absent; defaults are applied only when evaluating.
func (e Engine) RecordRisk(ctx context.Context, caseID string, rs domain.RiskSummary, actorID string) (domain.RiskSummary, error) {
	if err := normalizeRisk(&rs); err != nil {
		return domain.RiskSummary{}, err
	}
	if rs.Source == "" {
		rs.Source = "manual"
	}
	rs.RecordedAt = e.stamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RiskSummary{}, err
	}
	defer tx.Rollback()
	c, err := e.activeCase(ctx, tx, caseID)
	if err != nil {
		return domain.RiskSummary{}, err
	}
	if err := e.Repo.UpsertRisk(ctx, tx, caseID, rs); err != nil {
		return domain.RiskSummary{}, fmt.Errorf("upsert risk: %w", err)
	}
	payload := events.EventPayload{
		"rag_status":              rs.RAGStatus,
		"vigilance_risk_category": rs.VigilanceRiskCategory,
		"source":                  rs.Source,
	}
	if rs.VitalityScore != nil {
		payload["vitality_score"] = *rs.VitalityScore
	}
	if err := e.Events.Append(ctx, tx, events.RiskRecorded, c.OrgID, "case", c.ID, actorID, payload); err != nil {
		return domain.RiskSummary{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RiskSummary{}, err
	}
	return rs, nil
}

func (e Engine) GetRisk(ctx context.Context, caseID string) (domain.RiskSummary, error) {
	if _, err := e.getCase(ctx, nil, caseID); err != nil {
		return domain.RiskSummary{}, err
	}
	return e.Repo.GetRisk(ctx, nil, caseID)
}

func validateAssessment(a domain.Assessment) error {
	if p := a.FourPs.Physical.PainScore; p != nil && (*p < 0 || *p > 10) {
		return fmt.Errorf("pain score must be between 0 and 10, got %d", *p)
	}
	for name, v := range map[string]*float64{
		"engagement":     a.Vitality.Engagement,
		"plan_progress":  a.Vitality.PlanProgress,
		"risk_stability": a.Vitality.RiskStability,
	} {
		if v != nil && (*v < 0 || *v > 10) {
			return fmt.Errorf("vitality %s must be between 0 and 10, got %v", name, *v)
		}
	}
	return nil
}

// RecordAssessment replaces the latest 4Ps/10-Vs intake for a case.
func (e Engine) RecordAssessment(ctx context.Context, a domain.Assessment, actorID string) (domain.Assessment, error) {
	if err := validateAssessment(a); err != nil {
		return domain.Assessment{}, err
	}
	a.RecordedAt = e.stamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assessment{}, err
	}
	defer tx.Rollback()
	c, err := e.activeCase(ctx, tx, a.CaseID)
	if err != nil {
		return domain.Assessment{}, err
	}
	if err := e.Repo.UpsertAssessment(ctx, tx, a); err != nil {
		return domain.Assessment{}, fmt.Errorf("upsert assessment: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.AssessmentRecorded, c.OrgID, "case", c.ID, actorID, events.EventPayload{
		"goals":        len(a.Goals),
		"client_voice": a.ClientVoice != "",
	}); err != nil {
		return domain.Assessment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assessment{}, err
	}
	return a, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
