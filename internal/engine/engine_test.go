package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"missionctl/internal/config"
	"missionctl/internal/db"
	"missionctl/internal/engine"
	"missionctl/internal/ledger"
	"missionctl/internal/migrate"
	"missionctl/internal/repo"
	"missionctl/internal/stats"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return now }
	eng.Stats = stats.Recomputer{Repo: eng.Repo, Now: eng.Now}
	return testEnv{Engine: eng, Ctx: context.Background(), Clock: &now}
}

func (env testEnv) advance(d time.Duration) {
	*env.Clock = env.Clock.Add(d)
}

func (env testEnv) create(t *testing.T, title string) string {
	t.Helper()
	m, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{
		UserID: "tester",
		Title:  title,
	})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m.ID
}

func (env testEnv) activityCount(t *testing.T, missionID string) int {
	t.Helper()
	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{MissionID: missionID})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	return len(acts)
}

func TestMissionLifecycleHappyPath(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "Collect statements")

	m, err := env.Engine.StartMission(env.Ctx, id, "tester")
	if err != nil || m.Status != "running" {
		t.Fatalf("start: %v status=%s", err, m.Status)
	}
	if m.StartedAt == nil {
		t.Fatal("expected started_at on first start")
	}
	firstStart := *m.StartedAt

	env.advance(time.Minute)
	m, err = env.Engine.PauseMission(env.Ctx, id, "tester")
	if err != nil || m.Status != "paused" {
		t.Fatalf("pause: %v status=%s", err, m.Status)
	}

	env.advance(time.Minute)
	m, err = env.Engine.ResumeMission(env.Ctx, id, "tester")
	if err != nil || m.Status != "running" {
		t.Fatalf("resume: %v status=%s", err, m.Status)
	}
	if m.StartedAt == nil || *m.StartedAt != firstStart {
		t.Fatalf("resume must not overwrite started_at: %v != %s", m.StartedAt, firstStart)
	}

	env.advance(time.Minute)
	m, err = env.Engine.CompleteMission(env.Ctx, id, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if m.Status != "completed" || m.Progress != 100 {
		t.Fatalf("expected completed/100, got %s/%d", m.Status, m.Progress)
	}
	if m.CompletedAt == nil {
		t.Fatal("expected completed_at")
	}
	if *m.StartedAt != firstStart {
		t.Fatalf("completion changed started_at")
	}

	// The ledger reads back most recent first.
	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{MissionID: id})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	want := []string{
		"Mission completed",
		"Mission resumed",
		"Mission paused",
		"Mission started",
		"Mission created",
	}
	if len(acts) != len(want) {
		t.Fatalf("expected %d ledger entries, got %d", len(want), len(acts))
	}
	for i, msg := range want {
		if acts[i].Message != msg {
			t.Fatalf("entry %d: expected %q, got %q", i, msg, acts[i].Message)
		}
	}
}

func TestLedgerOrderBreaksTimestampTies(t *testing.T) {
	env := newTestEnv(t)
	// The clock never advances, so all entries share one timestamp and
	// only the id keeps the read order stable.
	id := env.create(t, "Burst")
	if _, err := env.Engine.StartMission(env.Ctx, id, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Engine.PauseMission(env.Ctx, id, "tester"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{MissionID: id})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	want := []string{"Mission paused", "Mission started", "Mission created"}
	if len(acts) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(acts))
	}
	for i, msg := range want {
		if acts[i].Message != msg {
			t.Fatalf("entry %d: expected %q, got %q", i, msg, acts[i].Message)
		}
		if i > 0 && acts[i].ID >= acts[i-1].ID {
			t.Fatalf("ids must descend with the read order: %d then %d", acts[i-1].ID, acts[i].ID)
		}
	}
}

func TestInjectedLedgerWriterIsUsed(t *testing.T) {
	env := newTestEnv(t)
	fixed := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	env.Engine.Ledger = ledger.Writer{Now: func() time.Time { return fixed }}

	id := env.create(t, "Custom clock")
	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{MissionID: id})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(acts) != 1 {
		t.Fatalf("expected one entry, got %d", len(acts))
	}
	if acts[0].Timestamp != fixed.Format(time.RFC3339) {
		t.Fatalf("entry must carry the injected writer's timestamp, got %s", acts[0].Timestamp)
	}
}

func TestStartFromPausedKeepsStartedAt(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "Restartable")

	m, err := env.Engine.StartMission(env.Ctx, id, "tester")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	first := *m.StartedAt
	if _, err := env.Engine.PauseMission(env.Ctx, id, "tester"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	env.advance(time.Hour)
	m, err = env.Engine.StartMission(env.Ctx, id, "tester")
	if err != nil || m.Status != "running" {
		t.Fatalf("start from paused: %v status=%s", err, m.Status)
	}
	if *m.StartedAt != first {
		t.Fatalf("second start overwrote started_at: %s != %s", *m.StartedAt, first)
	}
}

func TestTransitionMatrixRejections(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name  string
		setup func(id string)
		op    func(id string) error
		to    string
	}{
		{
			name: "complete from pending",
			op: func(id string) error {
				_, err := env.Engine.CompleteMission(env.Ctx, id, "tester")
				return err
			},
			to: "completed",
		},
		{
			name: "pause from pending",
			op: func(id string) error {
				_, err := env.Engine.PauseMission(env.Ctx, id, "tester")
				return err
			},
			to: "paused",
		},
		{
			name: "resume from running",
			setup: func(id string) {
				if _, err := env.Engine.StartMission(env.Ctx, id, "tester"); err != nil {
					t.Fatalf("setup start: %v", err)
				}
			},
			op: func(id string) error {
				_, err := env.Engine.ResumeMission(env.Ctx, id, "tester")
				return err
			},
			to: "running",
		},
		{
			name: "start from cancelled",
			setup: func(id string) {
				if _, err := env.Engine.CancelMission(env.Ctx, id, "tester"); err != nil {
					t.Fatalf("setup cancel: %v", err)
				}
			},
			op: func(id string) error {
				_, err := env.Engine.StartMission(env.Ctx, id, "tester")
				return err
			},
			to: "running",
		},
		{
			name: "fail from completed",
			setup: func(id string) {
				if _, err := env.Engine.StartMission(env.Ctx, id, "tester"); err != nil {
					t.Fatalf("setup start: %v", err)
				}
				if _, err := env.Engine.CompleteMission(env.Ctx, id, "tester"); err != nil {
					t.Fatalf("setup complete: %v", err)
				}
			},
			op: func(id string) error {
				_, err := env.Engine.FailMission(env.Ctx, id, "tester", "late failure")
				return err
			},
			to: "failed",
		},
		{
			name: "cancel from failed",
			setup: func(id string) {
				if _, err := env.Engine.FailMission(env.Ctx, id, "tester", "boom"); err != nil {
					t.Fatalf("setup fail: %v", err)
				}
			},
			op: func(id string) error {
				_, err := env.Engine.CancelMission(env.Ctx, id, "tester")
				return err
			},
			to: "cancelled",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := env.create(t, tc.name)
			if tc.setup != nil {
				tc.setup(id)
			}
			before := env.activityCount(t, id)
			err := tc.op(id)
			var te engine.InvalidTransitionError
			if !errors.As(err, &te) {
				t.Fatalf("expected InvalidTransitionError, got %v", err)
			}
			if te.To != tc.to {
				t.Fatalf("expected target %q, got %q", tc.to, te.To)
			}
			if after := env.activityCount(t, id); after != before {
				t.Fatalf("rejected transition must not append to the ledger: %d -> %d", before, after)
			}
		})
	}
}

func TestFailCarriesReason(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "Doomed")

	m, err := env.Engine.FailMission(env.Ctx, id, "tester", "upstream service unreachable")
	if err != nil || m.Status != "failed" {
		t.Fatalf("fail: %v status=%s", err, m.Status)
	}
	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{MissionID: id, Type: "error"})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(acts) != 1 || acts[0].Message != "Mission failed" || acts[0].Details != "upstream service unreachable" {
		t.Fatalf("unexpected failure entry: %+v", acts)
	}
}

func TestOwnershipIsNonExistence(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "Mine")

	if _, err := env.Engine.StartMission(env.Ctx, id, "intruder"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
	if _, err := env.Engine.MissionDetail(env.Ctx, id, "intruder"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign detail, got %v", err)
	}
}

func TestGuardedTransitionConflict(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "Contested")

	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	m, err := env.Engine.Repo.GetMissionTx(env.Ctx, tx, id, "tester")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Guard against a status the row no longer has.
	m.Status = "running"
	affected, err := env.Engine.Repo.TransitionMission(env.Ctx, tx, m, "paused")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if affected != 0 {
		t.Fatalf("stale guard must match no rows, affected=%d", affected)
	}
	tx.Rollback()
}

func TestStatsRecomputeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	finish := func(id string) {
		if _, err := env.Engine.StartMission(env.Ctx, id, "tester"); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := env.Engine.CompleteMission(env.Ctx, id, "tester"); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	finish(env.create(t, "one"))
	finish(env.create(t, "two"))
	env.create(t, "still pending")
	if _, err := env.Engine.FailMission(env.Ctx, env.create(t, "broken"), "tester", "nope"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rec := stats.Recomputer{Repo: env.Engine.Repo, Now: env.Engine.Now}
	for i := 0; i < 3; i++ {
		profile, err := rec.Recompute(env.Ctx, "tester")
		if err != nil {
			t.Fatalf("recompute %d: %v", i, err)
		}
		if profile.TotalMissions != 4 || profile.CompletedMissions != 2 {
			t.Fatalf("run %d: expected 4/2, got %d/%d", i, profile.TotalMissions, profile.CompletedMissions)
		}
	}
}

func TestUpdateMissionLeavesLifecycleAlone(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "Original title")
	if _, err := env.Engine.StartMission(env.Ctx, id, "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}

	title := "Renamed"
	priority := "urgent"
	m, err := env.Engine.UpdateMission(env.Ctx, engine.MissionUpdateOptions{
		ID:       id,
		UserID:   "tester",
		Title:    &title,
		Priority: &priority,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.Title != "Renamed" || m.Priority != "urgent" {
		t.Fatalf("update not applied: %+v", m)
	}
	if m.Status != "running" || m.Progress != 0 {
		t.Fatalf("update touched lifecycle: %s/%d", m.Status, m.Progress)
	}

	bad := "catastrophic"
	if _, err := env.Engine.UpdateMission(env.Ctx, engine.MissionUpdateOptions{ID: id, UserID: "tester", Priority: &bad}); err == nil {
		t.Fatal("expected validation error for unknown priority")
	}
}

func TestDeleteMissionRemovesAggregate(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "Short lived")
	if _, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "step"}); err != nil {
		t.Fatalf("add step: %v", err)
	}
	if _, err := env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{MissionID: id, UserID: "tester", Name: "doc.pdf"}); err != nil {
		t.Fatalf("add document: %v", err)
	}

	if err := env.Engine.DeleteMission(env.Ctx, id, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetMission(env.Ctx, id, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected mission gone, got %v", err)
	}
	steps, err := env.Engine.Repo.ListSteps(env.Ctx, id)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(steps) != 0 {
		t.Fatalf("expected steps cascade, got %d", len(steps))
	}
	if n := env.activityCount(t, id); n != 0 {
		t.Fatalf("expected ledger cascade, got %d entries", n)
	}
	docs, err := env.Engine.Repo.ListDocuments(env.Ctx, id)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected documents cascade, got %d", len(docs))
	}
}
