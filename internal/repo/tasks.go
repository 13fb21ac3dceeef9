package repo

import (
	"context"
	"database/sql"

	"caregate/internal/domain"
)

const taskColumns = `id,case_id,type,title,due_date,status,assigned_to,created_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status string
	var due, assigned sql.NullString
	err := row.Scan(&t.ID, &t.CaseID, &t.Type, &t.Title, &due, &status, &assigned, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Status = domain.TaskStatus(status)
	t.DueDate = stringPtr(due)
	t.AssignedTo = stringPtr(assigned)
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO tasks(id,case_id,type,title,due_date,status,assigned_to,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.CaseID, t.Type, t.Title, nullableStringPtr(t.DueDate), string(t.Status), nullableStringPtr(t.AssignedTo), t.CreatedAt, t.CreatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.on(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, id string, status domain.TaskStatus, updatedAt string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, string(status), updatedAt, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// ListTasks returns a case's tasks in creation order. An empty status lists all.
func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, caseID string, status domain.TaskStatus) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE case_id=?`
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
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
