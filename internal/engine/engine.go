package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caregate/internal/config"
	"caregate/internal/domain"
	"caregate/internal/events"
	"caregate/internal/lockdown"
	"caregate/internal/notify"
	"caregate/internal/repo"
	"caregate/internal/tenvs"
)

// ErrCaseClosed is returned when a change targets a closed case.
var ErrCaseClosed = errors.New("case is closed")

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Notifier notify.Notifier
	Log      *zap.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Notifier: notify.Nop{},
		Log:      zap.NewNop(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// today is the calendar day used for due-date checks, always taken in UTC.
func (e Engine) today() time.Time {
	return e.now().UTC()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) orgID() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Org.ID
}

// Scorer picks the risk source from scoring.mode. "recorded" prefers the
// stored summary and falls back to the 10-Vs assessment; "tenvs" always
// derives the summary from the assessment.
func (e Engine) Scorer() lockdown.Scorer {
	if e.Config != nil && e.Config.Scoring.Mode == config.ScoringTenVs {
		return lockdown.Chain(tenvs.Scorer)
	}
	return lockdown.Chain(lockdown.Recorded, tenvs.Scorer)
}

// ImportConfig validates and stores the org config. Callers swap Config
// themselves when they keep the engine.
func (e Engine) ImportConfig(ctx context.Context, cfg *config.Config, actorID string) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOrgConfigTx(ctx, tx, cfg.Org.ID, cfg); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ConfigImported, cfg.Org.ID, "org", cfg.Org.ID, actorID, events.EventPayload{
		"scoring_mode":   cfg.Scoring.Mode,
		"report_kinds":   cfg.Release.ReportKinds,
		"allow_override": cfg.Release.AllowOverride,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// CaseCreateOptions are parameters for opening a case.
type CaseCreateOptions struct {
	ID           string
	ClientName   string
	AttorneyName string
	CaseType     string
	ActorID      string
}

func (e Engine) CreateCase(ctx context.Context, opts CaseCreateOptions) (domain.Case, error) {
	if e.Config == nil {
		return domain.Case{}, errors.New("config not loaded")
	}
	if strings.TrimSpace(opts.ClientName) == "" {
		return domain.Case{}, errors.New("client name is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.stamp()
	c := domain.Case{
		ID:           id,
		OrgID:        e.orgID(),
		ClientName:   strings.TrimSpace(opts.ClientName),
		AttorneyName: opts.AttorneyName,
		CaseType:     opts.CaseType,
		Status:       domain.CaseActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCase(ctx, tx, c); err != nil {
		return domain.Case{}, fmt.Errorf("insert case: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.CaseCreated, c.OrgID, "case", c.ID, opts.ActorID, events.EventPayload{
		"client_name": c.ClientName,
		"case_type":   c.CaseType,
	}); err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

// GetCase returns a case owned by the configured org.
func (e Engine) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return e.getCase(ctx, nil, id)
}

func (e Engine) getCase(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	c, err := e.Repo.GetCase(ctx, tx, id)
	if err != nil {
		return domain.Case{}, err
	}
	if org := e.orgID(); org != "" && c.OrgID != org {
		return domain.Case{}, repo.ErrNotFound
	}
	return c, nil
}

func (e Engine) activeCase(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	c, err := e.getCase(ctx, tx, id)
	if err != nil {
		return c, err
	}
	if c.Status == domain.CaseClosed {
		return c, ErrCaseClosed
	}
	return c, nil
}

// CaseUpdateOptions changes descriptive fields. Nil fields are left untouched.
type CaseUpdateOptions struct {
	ID           string
	ClientName   *string
	AttorneyName *string
	CaseType     *string
	ActorID      string
}

func (e Engine) UpdateCase(ctx context.Context, opts CaseUpdateOptions) (domain.Case, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()
	c, err := e.getCase(ctx, tx, opts.ID)
	if err != nil {
		return domain.Case{}, err
	}
	changed := events.EventPayload{}
	if opts.ClientName != nil {
		name := strings.TrimSpace(*opts.ClientName)
		if name == "" {
			return domain.Case{}, errors.New("client name is required")
		}
		c.ClientName = name
		changed["client_name"] = name
	}
	if opts.AttorneyName != nil {
		c.AttorneyName = *opts.AttorneyName
		changed["attorney_name"] = c.AttorneyName
	}
	if opts.CaseType != nil {
		c.CaseType = *opts.CaseType
		changed["case_type"] = c.CaseType
	}
	if len(changed) == 0 {
		return c, nil
	}
	c.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateCase(ctx, tx, c); err != nil {
		return domain.Case{}, err
	}
	if err := e.Events.Append(ctx, tx, events.CaseUpdated, c.OrgID, "case", c.ID, opts.ActorID, changed); err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

func (e Engine) DeleteCase(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := e.getCase(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteCase(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.CaseDeleted, c.OrgID, "case", c.ID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func ensureCaseTransition(oldStatus, newStatus domain.CaseStatus) error {
	if oldStatus == newStatus {
		return fmt.Errorf("case already %s", newStatus)
	}
	switch newStatus {
	case domain.CaseActive:
		return nil
	case domain.CaseClosed:
		return errors.New("cases are closed through the closure workflow")
	}
	return fmt.Errorf("invalid case status %q", newStatus)
}

// UpdateCaseStatus reopens a closed case. Closing goes through CloseCase.
func (e Engine) UpdateCaseStatus(ctx context.Context, id string, status domain.CaseStatus, actorID string) (domain.Case, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()
	c, err := e.getCase(ctx, tx, id)
	if err != nil {
		return domain.Case{}, err
	}
	if err := ensureCaseTransition(c.Status, status); err != nil {
		return domain.Case{}, err
	}
	from := c.Status
	c.Status = status
	c.ClosureType = ""
	c.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateCase(ctx, tx, c); err != nil {
		return domain.Case{}, err
	}
	if err := e.Events.Append(ctx, tx, events.CaseStatusChanged, c.OrgID, "case", c.ID, actorID, events.EventPayload{
		"from": from,
		"to":   c.Status,
	}); err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

// LoadState gathers the case with its flags, tasks, latest assessment and
// recorded risk summary.
func (e Engine) LoadState(ctx context.Context, caseID string) (domain.CaseState, error) {
	return e.loadState(ctx, nil, caseID)
}

func (e Engine) loadState(ctx context.Context, tx *sql.Tx, caseID string) (domain.CaseState, error) {
	c, err := e.getCase(ctx, tx, caseID)
	if err != nil {
		return domain.CaseState{}, err
	}
	state := domain.CaseState{Case: c}
	if state.Flags, err = e.Repo.ListFlags(ctx, tx, caseID, ""); err != nil {
		return domain.CaseState{}, fmt.Errorf("list flags: %w", err)
	}
	if state.Tasks, err = e.Repo.ListTasks(ctx, tx, caseID, ""); err != nil {
		return domain.CaseState{}, fmt.Errorf("list tasks: %w", err)
	}
	a, err := e.Repo.GetAssessment(ctx, tx, caseID)
	switch {
	case err == nil:
		state.Assessment = &a
	case !errors.Is(err, repo.ErrNotFound):
		return domain.CaseState{}, fmt.Errorf("get assessment: %w", err)
	}
	rs, err := e.Repo.GetRisk(ctx, tx, caseID)
	switch {
	case err == nil:
		state.Risk = &rs
	case !errors.Is(err, repo.ErrNotFound):
		return domain.CaseState{}, fmt.Errorf("get risk: %w", err)
	}
	return state, nil
}

// ListCases returns the org's cases newest first.
func (e Engine) ListCases(ctx context.Context, f repo.CaseFilters) ([]domain.Case, error) {
	f.OrgID = e.orgID()
	return e.Repo.ListCases(ctx, f)
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	f.OrgID = e.orgID()
	return e.Repo.LatestEvents(ctx, f)
}
