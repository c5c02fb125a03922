package engine_test

import (
	"errors"
	"testing"
	"time"

	"missionctl/internal/engine"
	"missionctl/internal/repo"
)

func TestStepTreeOrdering(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "Ordered plan")

	add := func(title, parentID string, order int) string {
		s, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{
			MissionID: id,
			UserID:    "tester",
			ParentID:  parentID,
			Title:     title,
			Order:     order,
		})
		if err != nil {
			t.Fatalf("add step %s: %v", title, err)
		}
		return s.ID
	}

	first := add("first", "", 1)
	add("second", "", 2)
	add("child-b", first, 2)
	add("child-a", first, 1)

	tree, err := env.Engine.ListTree(env.Ctx, id, "tester")
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if len(tree) != 2 || tree[0].Title != "first" || tree[1].Title != "second" {
		t.Fatalf("unexpected roots: %+v", tree)
	}
	subs := tree[0].Substeps
	if len(subs) != 2 || subs[0].Title != "child-a" || subs[1].Title != "child-b" {
		t.Fatalf("children not ordered by order: %+v", subs)
	}
	if len(tree[1].Substeps) != 0 {
		t.Fatalf("expected empty substeps slice, got %+v", tree[1].Substeps)
	}
}

func TestStepParentMustShareMission(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "mission a")
	b := env.create(t, "mission b")

	foreign, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: b, UserID: "tester", Title: "elsewhere"})
	if err != nil {
		t.Fatalf("add foreign step: %v", err)
	}
	_, err = env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{
		MissionID: a,
		UserID:    "tester",
		ParentID:  foreign.ID,
		Title:     "orphan",
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for cross-mission parent, got %v", err)
	}
}

func TestForeignOwnerParentIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	mine := env.create(t, "mine")

	theirs, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{UserID: "rival", Title: "theirs"})
	if err != nil {
		t.Fatalf("create foreign mission: %v", err)
	}
	hidden, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: theirs.ID, UserID: "rival", Title: "hidden"})
	if err != nil {
		t.Fatalf("add foreign step: %v", err)
	}

	// A parent on someone else's mission must look like it does not
	// exist, not like a validation problem.
	_, err = env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{
		MissionID: mine,
		UserID:    "tester",
		ParentID:  hidden.ID,
		Title:     "orphan",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign parent on add, got %v", err)
	}

	s, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: mine, UserID: "tester", Title: "movable"})
	if err != nil {
		t.Fatalf("add step: %v", err)
	}
	_, err = env.Engine.UpdateStep(env.Ctx, engine.StepUpdateOptions{ID: s.ID, UserID: "tester", SetParent: &hidden.ID})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign parent on reparent, got %v", err)
	}
}

func TestStepReparentCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "cyclic")

	a, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "a"})
	if err != nil {
		t.Fatalf("add a: %v", err)
	}
	b, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "b", ParentID: a.ID})
	if err != nil {
		t.Fatalf("add b: %v", err)
	}
	c, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "c", ParentID: b.ID})
	if err != nil {
		t.Fatalf("add c: %v", err)
	}

	// a under its own grandchild closes a loop.
	_, err = env.Engine.UpdateStep(env.Ctx, engine.StepUpdateOptions{ID: a.ID, UserID: "tester", SetParent: &c.ID})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}

	// a step is its own ancestor too
	_, err = env.Engine.UpdateStep(env.Ctx, engine.StepUpdateOptions{ID: a.ID, UserID: "tester", SetParent: &a.ID})
	if !errors.As(err, &ve) {
		t.Fatalf("expected self-parent rejection, got %v", err)
	}

	// detaching to root is always allowed
	root := ""
	if _, err := env.Engine.UpdateStep(env.Ctx, engine.StepUpdateOptions{ID: b.ID, UserID: "tester", SetParent: &root}); err != nil {
		t.Fatalf("detach to root: %v", err)
	}

	// opposing reparents cannot both land: the second one sees the
	// first one's committed edge and closes a loop
	if _, err := env.Engine.UpdateStep(env.Ctx, engine.StepUpdateOptions{ID: a.ID, UserID: "tester", SetParent: &b.ID}); err != nil {
		t.Fatalf("reparent a under b: %v", err)
	}
	if _, err := env.Engine.UpdateStep(env.Ctx, engine.StepUpdateOptions{ID: b.ID, UserID: "tester", SetParent: &a.ID}); !errors.As(err, &ve) {
		t.Fatalf("expected cycle rejection for the opposing reparent, got %v", err)
	}
}

func TestDeleteStepRemovesSubtree(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "prunable")

	root, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "root"})
	if err != nil {
		t.Fatalf("add root: %v", err)
	}
	child, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "child", ParentID: root.ID})
	if err != nil {
		t.Fatalf("add child: %v", err)
	}
	if _, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "grandchild", ParentID: child.ID}); err != nil {
		t.Fatalf("add grandchild: %v", err)
	}
	keeper, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "keeper"})
	if err != nil {
		t.Fatalf("add keeper: %v", err)
	}

	if err := env.Engine.DeleteStep(env.Ctx, root.ID, "tester"); err != nil {
		t.Fatalf("delete subtree: %v", err)
	}
	steps, err := env.Engine.Repo.ListSteps(env.Ctx, id)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(steps) != 1 || steps[0].ID != keeper.ID {
		t.Fatalf("expected only keeper to survive, got %+v", steps)
	}
}

func TestStepStatusStampsOnce(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "timed plan")

	s, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "step"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	s, err = env.Engine.SetStepStatus(env.Ctx, s.ID, "tester", "in_progress")
	if err != nil || s.StartedAt == nil {
		t.Fatalf("in_progress: %v started=%v", err, s.StartedAt)
	}
	started := *s.StartedAt

	env.advance(time.Minute)
	s, err = env.Engine.SetStepStatus(env.Ctx, s.ID, "tester", "completed")
	if err != nil || s.CompletedAt == nil {
		t.Fatalf("completed: %v completed=%v", err, s.CompletedAt)
	}
	done := *s.CompletedAt

	// flipping back and forth keeps the original stamps
	env.advance(time.Minute)
	s, err = env.Engine.SetStepStatus(env.Ctx, s.ID, "tester", "in_progress")
	if err != nil {
		t.Fatalf("back to in_progress: %v", err)
	}
	if *s.StartedAt != started {
		t.Fatalf("started_at rewritten: %s != %s", *s.StartedAt, started)
	}
	env.advance(time.Minute)
	s, err = env.Engine.SetStepStatus(env.Ctx, s.ID, "tester", "skipped")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if *s.CompletedAt != done {
		t.Fatalf("completed_at rewritten: %s != %s", *s.CompletedAt, done)
	}

	if _, err := env.Engine.SetStepStatus(env.Ctx, s.ID, "tester", "paused"); err == nil {
		t.Fatal("expected unknown status rejection")
	}
}

func TestStepOwnershipHidden(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "mine")
	s, err := env.Engine.AddStep(env.Ctx, engine.StepCreateOptions{MissionID: id, UserID: "tester", Title: "step"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := env.Engine.SetStepStatus(env.Ctx, s.ID, "intruder", "in_progress"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
