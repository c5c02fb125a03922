package repo

import (
	"context"
	"database/sql"

	"missionctl/internal/domain"
)

const documentColumns = `d.id,d.mission_id,d.name,d.file_type,d.file_size,d.status,d.metadata_json,d.is_verified,d.verified_by,d.verified_at,d.uploaded_at,d.updated_at`

func scanDocument(row missionScanner) (domain.Document, error) {
	var d domain.Document
	var metadata, verifiedBy, verifiedAt sql.NullString
	err := row.Scan(&d.ID, &d.MissionID, &d.Name, &d.FileType, &d.FileSize, &d.Status,
		&metadata, &d.IsVerified, &verifiedBy, &verifiedAt, &d.UploadedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if metadata.Valid {
		d.Metadata = unmarshalMap(metadata.String)
	}
	if verifiedBy.Valid {
		d.VerifiedBy = &verifiedBy.String
	}
	if verifiedAt.Valid {
		d.VerifiedAt = &verifiedAt.String
	}
	return d, nil
}

func (r Repo) InsertDocument(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(id,mission_id,name,file_type,file_size,status,metadata_json,is_verified,verified_by,verified_at,uploaded_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.MissionID, d.Name, d.FileType, d.FileSize, d.Status, marshalMap(d.Metadata),
		d.IsVerified, nullableStringPtr(d.VerifiedBy), nullableStringPtr(d.VerifiedAt), d.UploadedAt, d.UpdatedAt)
	return err
}

// GetDocument loads a document scoped to the owning mission's user.
func (r Repo) GetDocument(ctx context.Context, id, userID string) (domain.Document, error) {
	return scanDocument(r.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents d JOIN missions m ON m.id=d.mission_id WHERE d.id=? AND m.user_id=?`, id, userID))
}

func (r Repo) UpdateDocumentVerification(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	res, err := tx.ExecContext(ctx, `UPDATE documents SET status=?, is_verified=?, verified_by=?, verified_at=?, updated_at=? WHERE id=?`,
		d.Status, d.IsVerified, nullableStringPtr(d.VerifiedBy), nullableStringPtr(d.VerifiedAt), d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListDocuments(ctx context.Context, missionID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.mission_id=? ORDER BY d.uploaded_at DESC, d.id DESC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// CountDocuments returns the document count for a mission.
func (r Repo) CountDocuments(ctx context.Context, missionID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE mission_id=?`, missionID).Scan(&n)
	return n, err
}
