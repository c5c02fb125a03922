package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"missionctl/internal/domain"
	"missionctl/internal/ledger"
)

// StepCreateOptions are parameters for adding a plan step.
type StepCreateOptions struct {
	ID          string
	MissionID   string
	UserID      string
	ParentID    string
	Title       string
	Description string
	Order       int
}

// AddStep creates a plan step in pending. A parent step must belong to
// the same mission.
func (e Engine) AddStep(ctx context.Context, opts StepCreateOptions) (domain.PlanStep, error) {
	if opts.Title == "" {
		return domain.PlanStep{}, validationErrorf("title is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PlanStep{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissionTx(ctx, tx, opts.MissionID, opts.UserID)
	if err != nil {
		return domain.PlanStep{}, err
	}
	var parentID *string
	if opts.ParentID != "" {
		parent, err := e.resolveParent(ctx, tx, opts.ParentID, m.ID, opts.UserID)
		if err != nil {
			return domain.PlanStep{}, err
		}
		parentID = &parent.ID
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	s := domain.PlanStep{
		ID:          id,
		MissionID:   m.ID,
		ParentID:    parentID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      "pending",
		Order:       opts.Order,
		CreatedAt:   e.nowString(),
	}
	if err := e.Repo.InsertStep(ctx, tx, s); err != nil {
		return domain.PlanStep{}, err
	}
	if _, err := e.writer().Append(ctx, tx, m.ID, "info", "Plan step added: "+s.Title, "",
		ledger.Metadata{"step_id": s.ID}); err != nil {
		return domain.PlanStep{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PlanStep{}, err
	}
	return s, nil
}

// StepUpdateOptions carries plan step attribute changes. SetParent
// reparents the step; an empty target makes it a root.
type StepUpdateOptions struct {
	ID          string
	UserID      string
	Title       *string
	Description *string
	Order       *int
	SetParent   *string
}

func (e Engine) UpdateStep(ctx context.Context, opts StepUpdateOptions) (domain.PlanStep, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PlanStep{}, err
	}
	defer tx.Rollback()

	// All reads run inside the write transaction so the cycle check and
	// the reparent commit against the same tree state.
	s, err := e.ownedStepTx(ctx, tx, opts.ID, opts.UserID)
	if err != nil {
		return s, err
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return s, validationErrorf("title is required")
		}
		s.Title = *opts.Title
	}
	if opts.Description != nil {
		s.Description = *opts.Description
	}
	if opts.Order != nil {
		s.Order = *opts.Order
	}
	if opts.SetParent != nil {
		if *opts.SetParent == "" {
			s.ParentID = nil
		} else {
			parent, err := e.resolveParent(ctx, tx, *opts.SetParent, s.MissionID, opts.UserID)
			if err != nil {
				return s, err
			}
			if err := e.ensureNoCycle(ctx, tx, parent.ID, s.ID); err != nil {
				return s, err
			}
			s.ParentID = &parent.ID
		}
	}
	if err := e.Repo.UpdateStep(ctx, tx, s); err != nil {
		return s, err
	}
	if _, err := e.writer().Append(ctx, tx, s.MissionID, "info", "Plan step updated: "+s.Title, "",
		ledger.Metadata{"step_id": s.ID}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// SetStepStatus assigns a plan step status. Entering in_progress stamps
// started_at once; entering a finished status stamps completed_at once.
// Parent and child statuses are not propagated.
func (e Engine) SetStepStatus(ctx context.Context, id, userID, status string) (domain.PlanStep, error) {
	if !domain.ValidStepStatus(status) {
		return domain.PlanStep{}, validationErrorf("unknown plan step status %q", status)
	}
	s, err := e.ownedStep(ctx, id, userID)
	if err != nil {
		return s, err
	}
	from := s.Status
	s.Status = status
	now := e.nowString()
	switch status {
	case "in_progress":
		if s.StartedAt == nil {
			s.StartedAt = &now
		}
	case "completed", "failed", "skipped":
		if s.CompletedAt == nil {
			s.CompletedAt = &now
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateStep(ctx, tx, s); err != nil {
		return s, err
	}
	if _, err := e.writer().Append(ctx, tx, s.MissionID, "info",
		fmt.Sprintf("Plan step %s: %s", status, s.Title), "",
		ledger.Metadata{"step_id": s.ID, "from": from, "to": status}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// DeleteStep removes a step and its whole subtree in one transaction.
func (e Engine) DeleteStep(ctx context.Context, id, userID string) error {
	s, err := e.ownedStep(ctx, id, userID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Collect the subtree deepest-first so explicit deletes never rely
	// on the parent_id cascade alone.
	ids, err := e.collectSubtree(ctx, tx, s.ID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteSteps(ctx, tx, ids); err != nil {
		return err
	}
	if _, err := e.writer().Append(ctx, tx, s.MissionID, "info", "Plan step removed: "+s.Title, "",
		ledger.Metadata{"step_id": s.ID, "removed": len(ids)}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) collectSubtree(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	children, err := e.Repo.ListStepChildren(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range children {
		sub, err := e.collectSubtree(ctx, tx, c)
		if err != nil {
			return nil, err
		}
		ids = append(ids, sub...)
	}
	return append(ids, id), nil
}

// ListTree returns the mission's plan as a forest of nested nodes,
// siblings ordered by order then id.
func (e Engine) ListTree(ctx context.Context, missionID, userID string) ([]domain.PlanStepNode, error) {
	if _, err := e.Repo.GetMission(ctx, missionID, userID); err != nil {
		return nil, err
	}
	steps, err := e.Repo.ListSteps(ctx, missionID)
	if err != nil {
		return nil, err
	}
	return BuildTree(steps), nil
}

// BuildTree assembles the nested forest from a flat, pre-ordered step
// list using an index of nodes rather than a recursive object graph.
func BuildTree(steps []domain.PlanStep) []domain.PlanStepNode {
	children := make(map[string][]domain.PlanStep)
	var roots []domain.PlanStep
	for _, s := range steps {
		if s.ParentID == nil {
			roots = append(roots, s)
			continue
		}
		children[*s.ParentID] = append(children[*s.ParentID], s)
	}
	var build func(s domain.PlanStep) domain.PlanStepNode
	build = func(s domain.PlanStep) domain.PlanStepNode {
		node := domain.PlanStepNode{PlanStep: s, Substeps: []domain.PlanStepNode{}}
		for _, c := range children[s.ID] {
			node.Substeps = append(node.Substeps, build(c))
		}
		return node
	}
	forest := []domain.PlanStepNode{}
	for _, r := range roots {
		forest = append(forest, build(r))
	}
	return forest
}

// resolveParent loads a prospective parent step inside the transaction.
// A parent on a mission the caller does not own is reported as not
// found; a parent on the caller's other mission is a validation error.
func (e Engine) resolveParent(ctx context.Context, tx *sql.Tx, parentID, missionID, userID string) (domain.PlanStep, error) {
	parent, err := e.Repo.GetStepTx(ctx, tx, parentID)
	if err != nil {
		return domain.PlanStep{}, err
	}
	if parent.MissionID == missionID {
		return parent, nil
	}
	if _, err := e.Repo.GetMissionTx(ctx, tx, parent.MissionID, userID); err != nil {
		return domain.PlanStep{}, err
	}
	return domain.PlanStep{}, validationErrorf("parent step belongs to a different mission")
}

// ensureNoCycle rejects reparenting a step under its own descendant by
// climbing the parent chain from the proposed parent.
func (e Engine) ensureNoCycle(ctx context.Context, tx *sql.Tx, parentID, stepID string) error {
	cur := parentID
	for cur != "" {
		if cur == stepID {
			return validationErrorf("plan step hierarchy cycle detected")
		}
		s, err := e.Repo.GetStepTx(ctx, tx, cur)
		if err != nil {
			return err
		}
		if s.ParentID == nil {
			return nil
		}
		cur = *s.ParentID
	}
	return nil
}

func (e Engine) ownedStep(ctx context.Context, id, userID string) (domain.PlanStep, error) {
	s, err := e.Repo.GetStep(ctx, id)
	if err != nil {
		return s, err
	}
	if _, err := e.Repo.GetMission(ctx, s.MissionID, userID); err != nil {
		return domain.PlanStep{}, err
	}
	return s, nil
}

func (e Engine) ownedStepTx(ctx context.Context, tx *sql.Tx, id, userID string) (domain.PlanStep, error) {
	s, err := e.Repo.GetStepTx(ctx, tx, id)
	if err != nil {
		return s, err
	}
	if _, err := e.Repo.GetMissionTx(ctx, tx, s.MissionID, userID); err != nil {
		return domain.PlanStep{}, err
	}
	return s, nil
}
