package stats

import (
	"context"
	"time"

	"missionctl/internal/domain"
	"missionctl/internal/repo"
)

// Recomputer rebuilds a user's mission counters from the full mission
// set. It never increments, so repeated runs with no intervening
// changes produce identical counters and any drift heals on the next
// completion.
type Recomputer struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (r Recomputer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// MissionCompleted recomputes and stores the counters for userID.
func (r Recomputer) MissionCompleted(ctx context.Context, userID string) error {
	_, err := r.Recompute(ctx, userID)
	return err
}

// Recompute counts the user's missions by status and overwrites the
// stored totals.
func (r Recomputer) Recompute(ctx context.Context, userID string) (domain.UserProfile, error) {
	counts, err := r.Repo.CountMissionsByStatus(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	completed := counts["completed"]
	now := r.now().UTC().Format(time.RFC3339)
	if err := r.Repo.SetUserMissionStats(ctx, userID, total, completed, now); err != nil {
		return domain.UserProfile{}, err
	}
	return r.Repo.GetUser(ctx, userID)
}
