package repo

import (
	"context"
	"database/sql"

	"missionctl/internal/domain"
)

// EnsureUser creates the user row if missing. Profile creation is
// explicit here rather than a persistence-layer side effect.
func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, id, name, now string) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT OR IGNORE INTO users(id,name,total_missions,completed_missions,created_at,updated_at) VALUES (?,?,0,0,?,?)`,
		id, nullable(name), now, now)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.UserProfile, error) {
	var u domain.UserProfile
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,total_missions,completed_missions,created_at,updated_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &name, &u.TotalMissions, &u.CompletedMissions, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if name.Valid {
		u.Name = name.String
	}
	return u, nil
}

// SetUserMissionStats overwrites the aggregate counters with freshly
// recomputed values.
func (r Repo) SetUserMissionStats(ctx context.Context, id string, total, completed int, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET total_missions=?, completed_missions=?, updated_at=? WHERE id=?`,
		total, completed, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
