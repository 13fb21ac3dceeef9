package repo

import (
	"context"
	"database/sql"

	"caregate/internal/domain"
)

const flagColumns = `id,case_id,type,label,COALESCE(description,''),severity,status,created_at,resolved_at`

func scanFlag(row rowScanner) (domain.Flag, error) {
	var f domain.Flag
	var sev, status string
	var resolved sql.NullString
	err := row.Scan(&f.ID, &f.CaseID, &f.Type, &f.Label, &f.Description, &sev, &status, &f.CreatedAt, &resolved)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	f.Severity = domain.FlagSeverity(sev)
	f.Status = domain.FlagStatus(status)
	f.ResolvedAt = stringPtr(resolved)
	return f, err
}

func (r Repo) InsertFlag(ctx context.Context, tx *sql.Tx, f domain.Flag) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO flags(id,case_id,type,label,description,severity,status,created_at,resolved_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		f.ID, f.CaseID, f.Type, f.Label, nullable(f.Description), string(f.Severity), string(f.Status), f.CreatedAt, nullableStringPtr(f.ResolvedAt))
	return err
}

func (r Repo) GetFlag(ctx context.Context, tx *sql.Tx, id string) (domain.Flag, error) {
	return scanFlag(r.on(tx).QueryRowContext(ctx, `SELECT `+flagColumns+` FROM flags WHERE id=?`, id))
}

func (r Repo) UpdateFlagStatus(ctx context.Context, tx *sql.Tx, id string, status domain.FlagStatus, resolvedAt *string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE flags SET status=?, resolved_at=? WHERE id=?`, string(status), nullableStringPtr(resolvedAt), id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// ListFlags returns a case's flags in creation order. An empty status lists all.
func (r Repo) ListFlags(ctx context.Context, tx *sql.Tx, caseID string, status domain.FlagStatus) ([]domain.Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM flags WHERE case_id=?`
	args := []any{caseID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	rows, err := r.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Flag{}
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
