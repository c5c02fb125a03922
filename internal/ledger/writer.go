package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"missionctl/internal/domain"
)

// Writer appends activity entries to a mission's ledger. It only ever
// writes inside the caller's transaction so a mission mutation and its
// ledger entry commit or roll back together. Entries are never updated
// or deleted.
type Writer struct {
	Now func() time.Time
}

type Metadata map[string]any

// Append inserts one activity entry and returns it with the assigned
// id and timestamp.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, missionID, actType, message, details string, metadata Metadata) (domain.Activity, error) {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if !domain.ValidActivityType(actType) {
		return domain.Activity{}, fmt.Errorf("unknown activity type %q", actType)
	}
	ts := now().UTC().Format(time.RFC3339)
	if metadata == nil {
		metadata = Metadata{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return domain.Activity{}, fmt.Errorf("marshal activity metadata: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO activities(mission_id,type,message,details,metadata_json,ts) VALUES (?,?,?,?,?,?)`,
		missionID, actType, message, nullable(details), string(data), ts)
	if err != nil {
		return domain.Activity{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Activity{}, err
	}
	return domain.Activity{
		ID:        id,
		MissionID: missionID,
		Type:      actType,
		Message:   message,
		Details:   details,
		Metadata:  metadata,
		Timestamp: ts,
	}, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
