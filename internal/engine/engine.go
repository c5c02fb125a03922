package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"missionctl/internal/config"
	"missionctl/internal/domain"
	"missionctl/internal/ledger"
	"missionctl/internal/repo"
)

// StatsAggregator recomputes a user's aggregate mission counters. It is
// invoked after a completing transition commits; recomputation is full,
// not incremental, so it self-heals after any inconsistency.
type StatsAggregator interface {
	MissionCompleted(ctx context.Context, userID string) error
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Ledger ledger.Writer
	Stats  StatsAggregator
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Ledger: ledger.Writer{},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// writer returns the configured ledger writer, defaulting its clock to
// the engine's so injected writers and the engine stamp consistently.
func (e Engine) writer() ledger.Writer {
	w := e.Ledger
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

// MissionCreateOptions are parameters for creating a mission.
type MissionCreateOptions struct {
	ID               string
	UserID           string
	Title            string
	Description      string
	Type             string
	Priority         string
	EstimatedSeconds *int64
	Config           map[string]any
}

// CreateMission allocates a mission in pending with progress 0 and
// appends the "Mission created" ledger entry in the same transaction.
func (e Engine) CreateMission(ctx context.Context, opts MissionCreateOptions) (domain.Mission, error) {
	if opts.UserID == "" {
		return domain.Mission{}, validationErrorf("user is required")
	}
	if opts.Title == "" {
		return domain.Mission{}, validationErrorf("title is required")
	}
	if opts.Type == "" {
		opts.Type = e.Config.DefaultMissionType()
	}
	if !domain.ValidMissionType(opts.Type) {
		return domain.Mission{}, validationErrorf("unknown mission type %q", opts.Type)
	}
	if opts.Priority == "" {
		opts.Priority = e.Config.DefaultPriority()
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Mission{}, validationErrorf("unknown priority %q", opts.Priority)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	m := domain.Mission{
		ID:               id,
		UserID:           opts.UserID,
		Title:            opts.Title,
		Description:      opts.Description,
		Type:             opts.Type,
		Status:           "pending",
		Progress:         0,
		Priority:         opts.Priority,
		EstimatedSeconds: opts.EstimatedSeconds,
		Config:           opts.Config,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureUser(ctx, tx, m.UserID, "", now); err != nil {
		return domain.Mission{}, fmt.Errorf("ensure user: %w", err)
	}
	if err := e.Repo.InsertMission(ctx, tx, m); err != nil {
		return domain.Mission{}, fmt.Errorf("insert mission: %w", err)
	}
	if _, err := e.writer().Append(ctx, tx, m.ID, "info", "Mission created",
		fmt.Sprintf("Mission %q has been created", m.Title), nil); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// StartMission moves a mission to running from pending, initializing or
// paused. started_at is set only on the first start; later resumes do
// not overwrite it.
func (e Engine) StartMission(ctx context.Context, id, userID string) (domain.Mission, error) {
	return e.transition(ctx, id, userID, func(m *domain.Mission) (string, string, string, error) {
		switch m.Status {
		case "pending", "initializing", "paused":
		default:
			return "", "", "", InvalidTransitionError{From: m.Status, To: "running"}
		}
		m.Status = "running"
		if m.StartedAt == nil {
			now := e.nowString()
			m.StartedAt = &now
		}
		return "milestone", "Mission started", fmt.Sprintf("Mission %q has been started", m.Title), nil
	}, nil)
}

// PauseMission moves a running mission to paused.
func (e Engine) PauseMission(ctx context.Context, id, userID string) (domain.Mission, error) {
	return e.transition(ctx, id, userID, func(m *domain.Mission) (string, string, string, error) {
		if m.Status != "running" {
			return "", "", "", InvalidTransitionError{From: m.Status, To: "paused"}
		}
		m.Status = "paused"
		return "warning", "Mission paused", fmt.Sprintf("Mission %q has been paused", m.Title), nil
	}, nil)
}

// ResumeMission moves a paused mission back to running.
func (e Engine) ResumeMission(ctx context.Context, id, userID string) (domain.Mission, error) {
	return e.transition(ctx, id, userID, func(m *domain.Mission) (string, string, string, error) {
		if m.Status != "paused" {
			return "", "", "", InvalidTransitionError{From: m.Status, To: "running"}
		}
		m.Status = "running"
		return "info", "Mission resumed", fmt.Sprintf("Mission %q has been resumed", m.Title), nil
	}, nil)
}

// CompleteMission finishes a running mission: progress is forced to
// 100, completed_at is stamped, and the owner's aggregate counters are
// recomputed once the transaction commits.
func (e Engine) CompleteMission(ctx context.Context, id, userID string) (domain.Mission, error) {
	m, err := e.transition(ctx, id, userID, func(m *domain.Mission) (string, string, string, error) {
		if m.Status != "running" {
			return "", "", "", InvalidTransitionError{From: m.Status, To: "completed"}
		}
		m.Status = "completed"
		m.Progress = 100
		now := e.nowString()
		m.CompletedAt = &now
		return "success", "Mission completed", fmt.Sprintf("Mission %q has been completed successfully", m.Title), nil
	}, nil)
	if err != nil {
		return m, err
	}
	if e.Stats != nil {
		if err := e.Stats.MissionCompleted(ctx, m.UserID); err != nil {
			return m, fmt.Errorf("recompute mission stats: %w", err)
		}
	}
	return m, nil
}

// FailMission marks any non-terminal mission as failed, carrying the
// reason in the ledger entry details.
func (e Engine) FailMission(ctx context.Context, id, userID, reason string) (domain.Mission, error) {
	return e.transition(ctx, id, userID, func(m *domain.Mission) (string, string, string, error) {
		if m.Terminal() {
			return "", "", "", InvalidTransitionError{From: m.Status, To: "failed"}
		}
		m.Status = "failed"
		return "error", "Mission failed", reason, nil
	}, nil)
}

// CancelMission marks any non-terminal mission as cancelled.
func (e Engine) CancelMission(ctx context.Context, id, userID string) (domain.Mission, error) {
	return e.transition(ctx, id, userID, func(m *domain.Mission) (string, string, string, error) {
		if m.Terminal() {
			return "", "", "", InvalidTransitionError{From: m.Status, To: "cancelled"}
		}
		m.Status = "cancelled"
		return "warning", "Mission cancelled", fmt.Sprintf("Mission %q has been cancelled", m.Title), nil
	}, nil)
}

// transition runs one lifecycle change as a single atomic unit: load
// the mission, apply the mutation, persist it guarded by the status it
// was validated against, append exactly one ledger entry, commit. A
// guarded update that changes no rows means another transition won the
// race and the whole unit rolls back.
func (e Engine) transition(ctx context.Context, id, userID string,
	mutate func(*domain.Mission) (actType, message, details string, err error),
	metadata ledger.Metadata) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissionTx(ctx, tx, id, userID)
	if err != nil {
		return domain.Mission{}, err
	}
	fromStatus := m.Status
	actType, message, details, err := mutate(&m)
	if err != nil {
		return m, err
	}
	m.UpdatedAt = e.nowString()
	affected, err := e.Repo.TransitionMission(ctx, tx, m, fromStatus)
	if err != nil {
		return m, err
	}
	if affected == 0 {
		return m, ErrConflict
	}
	if _, err := e.writer().Append(ctx, tx, m.ID, actType, message, details, metadata); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// MissionUpdateOptions carries the mutable attributes outside the
// lifecycle. Status and progress are deliberately absent; they change
// only through transitions.
type MissionUpdateOptions struct {
	ID               string
	UserID           string
	Title            *string
	Description      *string
	Priority         *string
	EstimatedSeconds *int64
	Config           map[string]any
}

func (e Engine) UpdateMission(ctx context.Context, opts MissionUpdateOptions) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissionTx(ctx, tx, opts.ID, opts.UserID)
	if err != nil {
		return domain.Mission{}, err
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return m, validationErrorf("title is required")
		}
		m.Title = *opts.Title
	}
	if opts.Description != nil {
		m.Description = *opts.Description
	}
	if opts.Priority != nil {
		if !domain.ValidPriority(*opts.Priority) {
			return m, validationErrorf("unknown priority %q", *opts.Priority)
		}
		m.Priority = *opts.Priority
	}
	if opts.EstimatedSeconds != nil {
		m.EstimatedSeconds = opts.EstimatedSeconds
	}
	if opts.Config != nil {
		m.Config = opts.Config
	}
	m.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateMissionFields(ctx, tx, m); err != nil {
		return m, err
	}
	if _, err := e.writer().Append(ctx, tx, m.ID, "info", "Mission updated",
		fmt.Sprintf("Mission %q has been updated", m.Title), nil); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// DeleteMission removes the whole aggregate: steps, ledger entries and
// documents go with the mission.
func (e Engine) DeleteMission(ctx context.Context, id, userID string) error {
	return e.Repo.DeleteMission(ctx, id, userID)
}

// MissionDetail composes mission, plan-step tree, the recent activity
// window and the document list into one view.
func (e Engine) MissionDetail(ctx context.Context, id, userID string) (domain.MissionDetail, error) {
	m, err := e.Repo.GetMission(ctx, id, userID)
	if err != nil {
		return domain.MissionDetail{}, err
	}
	tree, err := e.ListTree(ctx, id, userID)
	if err != nil {
		return domain.MissionDetail{}, err
	}
	acts, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
		MissionID: id,
		Limit:     e.Config.RecentActivityWindow(),
	})
	if err != nil {
		return domain.MissionDetail{}, err
	}
	docs, err := e.Repo.ListDocuments(ctx, id)
	if err != nil {
		return domain.MissionDetail{}, err
	}
	return domain.MissionDetail{
		Mission:          m,
		PlanSteps:        tree,
		RecentActivities: acts,
		Documents:        docs,
	}, nil
}
