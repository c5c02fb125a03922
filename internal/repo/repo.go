package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"missionctl/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const missionColumns = `id,user_id,title,COALESCE(description,''),type,status,progress,priority,estimated_seconds,config_json,created_at,started_at,completed_at,updated_at`

type missionScanner interface {
	Scan(dest ...any) error
}

func scanMission(row missionScanner) (domain.Mission, error) {
	var m domain.Mission
	var estimated sql.NullInt64
	var configJSON, startedAt, completedAt sql.NullString
	err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Description, &m.Type, &m.Status, &m.Progress, &m.Priority,
		&estimated, &configJSON, &m.CreatedAt, &startedAt, &completedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if estimated.Valid {
		m.EstimatedSeconds = &estimated.Int64
	}
	if configJSON.Valid {
		m.Config = unmarshalMap(configJSON.String)
	}
	if startedAt.Valid {
		m.StartedAt = &startedAt.String
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.String
	}
	return m, nil
}

func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO missions(id,user_id,title,description,type,status,progress,priority,estimated_seconds,config_json,created_at,started_at,completed_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.UserID, m.Title, nullable(m.Description), m.Type, m.Status, m.Progress, m.Priority,
		nullableInt64Ptr(m.EstimatedSeconds), marshalMap(m.Config), m.CreatedAt,
		nullableStringPtr(m.StartedAt), nullableStringPtr(m.CompletedAt), m.UpdatedAt)
	return err
}

// GetMission loads a mission scoped to its owner. A mission owned by a
// different user is reported as not found.
func (r Repo) GetMission(ctx context.Context, id, userID string) (domain.Mission, error) {
	return scanMission(r.DB.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE id=? AND user_id=?`, id, userID))
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id, userID string) (domain.Mission, error) {
	return scanMission(tx.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE id=? AND user_id=?`, id, userID))
}

type MissionFilters struct {
	UserID          string
	Status          string
	Type            string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.Mission, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + missionColumns + ` FROM missions WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// UpdateMissionFields persists mutable attributes outside the lifecycle
// (title, description, priority, estimated duration, config).
func (r Repo) UpdateMissionFields(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET title=?, description=?, priority=?, estimated_seconds=?, config_json=?, updated_at=? WHERE id=?`,
		m.Title, nullable(m.Description), m.Priority, nullableInt64Ptr(m.EstimatedSeconds), marshalMap(m.Config), m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionMission applies a lifecycle status change guarded by the
// expected current status. It returns the number of rows changed; zero
// means a concurrent transition won the race.
func (r Repo) TransitionMission(ctx context.Context, tx *sql.Tx, m domain.Mission, fromStatus string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET status=?, progress=?, started_at=?, completed_at=?, updated_at=? WHERE id=? AND status=?`,
		m.Status, m.Progress, nullableStringPtr(m.StartedAt), nullableStringPtr(m.CompletedAt), m.UpdatedAt, m.ID, fromStatus)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteMission removes the mission aggregate; plan steps, activities
// and documents cascade with it.
func (r Repo) DeleteMission(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM missions WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMissionsByStatus groups a user's missions by lifecycle status.
func (r Repo) CountMissionsByStatus(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM missions WHERE user_id=? GROUP BY status`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// --- helpers shared across entity files ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func marshalMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(b)
}

func unmarshalMap(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
