package repo

import (
	"context"
	"database/sql"

	"missionctl/internal/domain"
)

const stepColumns = `id,mission_id,parent_id,title,COALESCE(description,''),status,ord,created_at,started_at,completed_at`

func scanStep(row missionScanner) (domain.PlanStep, error) {
	var s domain.PlanStep
	var parentID, startedAt, completedAt sql.NullString
	err := row.Scan(&s.ID, &s.MissionID, &parentID, &s.Title, &s.Description, &s.Status, &s.Order,
		&s.CreatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if parentID.Valid {
		s.ParentID = &parentID.String
	}
	if startedAt.Valid {
		s.StartedAt = &startedAt.String
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.String
	}
	return s, nil
}

func (r Repo) InsertStep(ctx context.Context, tx *sql.Tx, s domain.PlanStep) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO plan_steps(id,mission_id,parent_id,title,description,status,ord,created_at,started_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.MissionID, nullableStringPtr(s.ParentID), s.Title, nullable(s.Description), s.Status, s.Order,
		s.CreatedAt, nullableStringPtr(s.StartedAt), nullableStringPtr(s.CompletedAt))
	return err
}

func (r Repo) GetStep(ctx context.Context, id string) (domain.PlanStep, error) {
	return scanStep(r.DB.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM plan_steps WHERE id=?`, id))
}

func (r Repo) GetStepTx(ctx context.Context, tx *sql.Tx, id string) (domain.PlanStep, error) {
	return scanStep(tx.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM plan_steps WHERE id=?`, id))
}

func (r Repo) UpdateStep(ctx context.Context, tx *sql.Tx, s domain.PlanStep) error {
	res, err := tx.ExecContext(ctx, `UPDATE plan_steps SET title=?, description=?, status=?, ord=?, started_at=?, completed_at=? WHERE id=?`,
		s.Title, nullable(s.Description), s.Status, s.Order,
		nullableStringPtr(s.StartedAt), nullableStringPtr(s.CompletedAt), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSteps returns all steps of a mission ordered by sibling order
// with id as the deterministic tie-break.
func (r Repo) ListSteps(ctx context.Context, missionID string) ([]domain.PlanStep, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stepColumns+` FROM plan_steps WHERE mission_id=? ORDER BY ord ASC, id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PlanStep
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListStepChildren returns ids of the direct children of a step.
func (r Repo) ListStepChildren(ctx context.Context, tx *sql.Tx, stepID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM plan_steps WHERE parent_id=? ORDER BY ord ASC, id ASC`, stepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteSteps removes the given step rows. Callers pass a full subtree
// so the cascade is enforced at the aggregate boundary, not only by the
// parent_id foreign key.
func (r Repo) DeleteSteps(ctx context.Context, tx *sql.Tx, ids []string) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM plan_steps WHERE id=?`, id); err != nil {
			return err
		}
	}
	return nil
}
