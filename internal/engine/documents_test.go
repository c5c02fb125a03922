package engine_test

import (
	"errors"
	"testing"

	"missionctl/internal/engine"
	"missionctl/internal/repo"
)

func TestAddDocumentLogsFileSize(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "paperwork")

	d, err := env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{
		MissionID: id,
		UserID:    "tester",
		Name:      "statement.pdf",
		FileType:  "pdf",
		FileSize:  5 * 1024 * 1024,
	})
	if err != nil {
		t.Fatalf("add document: %v", err)
	}
	if d.Status != "pending" || d.IsVerified {
		t.Fatalf("unexpected fresh document: %+v", d)
	}

	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{MissionID: id, Type: "success"})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(acts) != 1 {
		t.Fatalf("expected one upload entry, got %d", len(acts))
	}
	if acts[0].Message != "Document uploaded: statement.pdf" {
		t.Fatalf("unexpected message: %s", acts[0].Message)
	}
	if acts[0].Details != "File size: 5.00 MB" {
		t.Fatalf("unexpected details: %s", acts[0].Details)
	}
}

func TestVerifyDocumentAppendsEveryTime(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "audited")

	d, err := env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{MissionID: id, UserID: "tester", Name: "report.pdf"})
	if err != nil {
		t.Fatalf("add document: %v", err)
	}

	before := env.activityCount(t, id)
	for i := 0; i < 3; i++ {
		v, err := env.Engine.VerifyDocument(env.Ctx, d.ID, "tester")
		if err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
		if !v.IsVerified || v.Status != "verified" || v.VerifiedBy == nil || *v.VerifiedBy != "tester" {
			t.Fatalf("unexpected verified state: %+v", v)
		}
	}
	if after := env.activityCount(t, id); after != before+3 {
		t.Fatalf("expected 3 new ledger entries, got %d", after-before)
	}
}

func TestRecordDownloadLeavesDocumentAlone(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "shared")

	d, err := env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{MissionID: id, UserID: "tester", Name: "export.csv", FileType: "csv"})
	if err != nil {
		t.Fatalf("add document: %v", err)
	}
	if _, err := env.Engine.RecordDownload(env.Ctx, d.ID, "tester"); err != nil {
		t.Fatalf("download: %v", err)
	}

	docs, err := env.Engine.Repo.ListDocuments(env.Ctx, id)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Status != "pending" || docs[0].IsVerified {
		t.Fatalf("download must not mutate the document: %+v", docs)
	}
	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{MissionID: id, Type: "action"})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(acts) != 1 || acts[0].Message != "Document downloaded: export.csv" {
		t.Fatalf("expected one download entry, got %+v", acts)
	}
}

func TestDocumentValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "strict")

	var ve engine.ValidationError
	_, err := env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{MissionID: id, UserID: "tester", Name: ""})
	if !errors.As(err, &ve) {
		t.Fatalf("expected name validation, got %v", err)
	}
	_, err = env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{MissionID: id, UserID: "tester", Name: "x", FileType: "exe"})
	if !errors.As(err, &ve) {
		t.Fatalf("expected file type validation, got %v", err)
	}
	_, err = env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{MissionID: id, UserID: "tester", Name: "x", FileSize: -1})
	if !errors.As(err, &ve) {
		t.Fatalf("expected size validation, got %v", err)
	}
	_, err = env.Engine.VerifyDocument(env.Ctx, "missing", "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
