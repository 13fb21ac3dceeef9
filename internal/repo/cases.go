package repo

import (
	"context"
	"database/sql"
	"strings"

	"caregate/internal/domain"
)

const caseColumns = `id,org_id,client_name,COALESCE(attorney_name,''),COALESCE(case_type,''),status,COALESCE(closure_type,''),created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (domain.Case, error) {
	var c domain.Case
	var status, closure string
	err := row.Scan(&c.ID, &c.OrgID, &c.ClientName, &c.AttorneyName, &c.CaseType, &status, &closure, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.Status = domain.CaseStatus(status)
	c.ClosureType = domain.ClosureType(closure)
	return c, err
}

func (r Repo) InsertCase(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO cases(id,org_id,client_name,attorney_name,case_type,status,closure_type,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.OrgID, c.ClientName, nullable(c.AttorneyName), nullable(c.CaseType), string(c.Status), nullable(string(c.ClosureType)), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCase(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	return scanCase(r.on(tx).QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id=?`, id))
}

type CaseFilters struct {
	OrgID           string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListCases(ctx context.Context, f CaseFilters) ([]domain.Case, error) {
	var clauses []string
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + caseColumns + ` FROM cases ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateCase(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE cases SET client_name=?,attorney_name=?,case_type=?,status=?,closure_type=?,updated_at=? WHERE id=?`,
		c.ClientName, nullable(c.AttorneyName), nullable(c.CaseType), string(c.Status), nullable(string(c.ClosureType)), c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) DeleteCase(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM cases WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}
