package repo

import (
	"context"
	"database/sql"
	"strings"

	"missionctl/internal/domain"
)

const activityColumns = `id,mission_id,type,message,COALESCE(details,''),metadata_json,ts`

func scanActivity(row missionScanner) (domain.Activity, error) {
	var a domain.Activity
	var metadata sql.NullString
	err := row.Scan(&a.ID, &a.MissionID, &a.Type, &a.Message, &a.Details, &metadata, &a.Timestamp)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if metadata.Valid {
		a.Metadata = unmarshalMap(metadata.String)
	}
	return a, nil
}

type ActivityFilters struct {
	MissionID string
	Type      string
	Limit     int
	CursorTS  string
	CursorID  int64
}

// ListActivities returns ledger entries most recent first. The ledger
// has no update or delete path; reads are the only other operation.
func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	clauses := []string{"mission_id=?"}
	args := []any{f.MissionID}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.CursorTS != "" && f.CursorID > 0 {
		clauses = append(clauses, "(ts < ? OR (ts = ? AND id < ?))")
		args = append(args, f.CursorTS, f.CursorTS, f.CursorID)
	}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY ts DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ActivitiesAfter returns entries with ids greater than the cursor in
// ascending order, for forwarders that tail the ledger.
func (r Repo) ActivitiesAfter(ctx context.Context, limit int, cursor int64, userID string) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if userID != "" {
		clauses = append(clauses, "mission_id IN (SELECT id FROM missions WHERE user_id=?)")
		args = append(args, userID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// LatestActivityID returns the highest ledger entry id, or 0 for an
// empty ledger. Forwarders start tailing from here.
func (r Repo) LatestActivityID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT coalesce(max(id), 0) FROM activities`).Scan(&id)
	return id, err
}

// CountActivities returns the ledger entry count for a mission.
func (r Repo) CountActivities(ctx context.Context, missionID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM activities WHERE mission_id=?`, missionID).Scan(&n)
	return n, err
}
