package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"missionctl/internal/domain"
	"missionctl/internal/ledger"
)

// DocumentCreateOptions register a document produced or processed by a
// mission. Only metadata is kept here; file bytes live with an external
// collaborator that reports the size.
type DocumentCreateOptions struct {
	ID        string
	MissionID string
	UserID    string
	Name      string
	FileType  string
	FileSize  int64
	Metadata  map[string]any
}

func (e Engine) AddDocument(ctx context.Context, opts DocumentCreateOptions) (domain.Document, error) {
	if opts.Name == "" {
		return domain.Document{}, validationErrorf("name is required")
	}
	if opts.FileType == "" {
		opts.FileType = "pdf"
	}
	if !domain.ValidFileType(opts.FileType) {
		return domain.Document{}, validationErrorf("unknown file type %q", opts.FileType)
	}
	if opts.FileSize < 0 {
		return domain.Document{}, validationErrorf("file size must not be negative")
	}
	m, err := e.Repo.GetMission(ctx, opts.MissionID, opts.UserID)
	if err != nil {
		return domain.Document{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	d := domain.Document{
		ID:         id,
		MissionID:  m.ID,
		Name:       opts.Name,
		FileType:   opts.FileType,
		FileSize:   opts.FileSize,
		Status:     "pending",
		Metadata:   opts.Metadata,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Document{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertDocument(ctx, tx, d); err != nil {
		return domain.Document{}, err
	}
	if _, err := e.writer().Append(ctx, tx, m.ID, "success", "Document uploaded: "+d.Name,
		fmt.Sprintf("File size: %.2f MB", float64(d.FileSize)/(1024*1024)),
		ledger.Metadata{"document_id": d.ID}); err != nil {
		return domain.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Document{}, err
	}
	return d, nil
}

// VerifyDocument marks a document as verified by the given user. The
// state change is idempotent, but every call appends its own ledger
// entry and refreshes verified_at.
func (e Engine) VerifyDocument(ctx context.Context, id, userID string) (domain.Document, error) {
	d, err := e.Repo.GetDocument(ctx, id, userID)
	if err != nil {
		return d, err
	}
	now := e.nowString()
	d.IsVerified = true
	d.Status = "verified"
	d.VerifiedBy = &userID
	d.VerifiedAt = &now
	d.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateDocumentVerification(ctx, tx, d); err != nil {
		return d, err
	}
	if _, err := e.writer().Append(ctx, tx, d.MissionID, "success", "Document verified: "+d.Name,
		"Verified by "+userID, ledger.Metadata{"document_id": d.ID}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

// RecordDownload appends one action entry per download. The document
// itself is untouched.
func (e Engine) RecordDownload(ctx context.Context, id, userID string) (domain.Document, error) {
	d, err := e.Repo.GetDocument(ctx, id, userID)
	if err != nil {
		return d, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()

	if _, err := e.writer().Append(ctx, tx, d.MissionID, "action", "Document downloaded: "+d.Name,
		"User "+userID+" downloaded "+d.Name, ledger.Metadata{"document_id": d.ID}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}
