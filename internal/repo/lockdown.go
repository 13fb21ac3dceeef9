package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"caregate/internal/domain"
)

const runColumns = `id,case_id,evaluated_on,can_release,risk_level,issues_json,risk_json,actor_id,created_at`

func scanRun(row rowScanner) (domain.LockdownRun, error) {
	var run domain.LockdownRun
	var canRelease int
	var level, issues, risk string
	err := row.Scan(&run.ID, &run.CaseID, &run.EvaluatedOn, &canRelease, &level, &issues, &risk, &run.ActorID, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return run, ErrNotFound
	}
	if err != nil {
		return run, err
	}
	run.Result.CanRelease = canRelease == 1
	run.Result.RiskLevel = domain.RiskLevel(level)
	run.Result.Issues = []domain.Issue{}
	if err := json.Unmarshal([]byte(issues), &run.Result.Issues); err != nil {
		return run, fmt.Errorf("decode run issues: %w", err)
	}
	if err := json.Unmarshal([]byte(risk), &run.Risk); err != nil {
		return run, fmt.Errorf("decode run risk: %w", err)
	}
	return run, nil
}

func (r Repo) InsertLockdownRun(ctx context.Context, tx *sql.Tx, run domain.LockdownRun) error {
	issues, err := json.Marshal(run.Result.Issues)
	if err != nil {
		return err
	}
	risk, err := json.Marshal(run.Risk)
	if err != nil {
		return err
	}
	canRelease := 0
	if run.Result.CanRelease {
		canRelease = 1
	}
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO lockdown_runs(`+runColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		run.ID, run.CaseID, run.EvaluatedOn, canRelease, string(run.Result.RiskLevel), string(issues), string(risk), run.ActorID, run.CreatedAt)
	return err
}

func (r Repo) GetLockdownRun(ctx context.Context, tx *sql.Tx, id string) (domain.LockdownRun, error) {
	return scanRun(r.on(tx).QueryRowContext(ctx, `SELECT `+runColumns+` FROM lockdown_runs WHERE id=?`, id))
}

// ListLockdownRuns returns a case's runs, newest first.
func (r Repo) ListLockdownRuns(ctx context.Context, caseID string, limit int) ([]domain.LockdownRun, error) {
	query := `SELECT ` + runColumns + ` FROM lockdown_runs WHERE case_id=? ORDER BY created_at DESC, rowid DESC`
	args := []any{caseID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LockdownRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

func (r Repo) InsertRelease(ctx context.Context, tx *sql.Tx, rel domain.Release) error {
	overridden := 0
	if rel.Overridden {
		overridden = 1
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO releases(id,case_id,report_kind,run_id,overridden,override_reason,actor_id,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		rel.ID, rel.CaseID, rel.ReportKind, rel.RunID, overridden, nullable(rel.OverrideReason), rel.ActorID, rel.CreatedAt)
	return err
}

// ListReleases returns a case's releases, newest first.
func (r Repo) ListReleases(ctx context.Context, caseID string) ([]domain.Release, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,case_id,report_kind,run_id,overridden,COALESCE(override_reason,''),actor_id,created_at FROM releases WHERE case_id=? ORDER BY created_at DESC, rowid DESC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Release{}
	for rows.Next() {
		var rel domain.Release
		var overridden int
		if err := rows.Scan(&rel.ID, &rel.CaseID, &rel.ReportKind, &rel.RunID, &overridden, &rel.OverrideReason, &rel.ActorID, &rel.CreatedAt); err != nil {
			return nil, err
		}
		rel.Overridden = overridden == 1
		res = append(res, rel)
	}
	return res, rows.Err()
}
