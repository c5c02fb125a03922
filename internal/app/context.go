package app

import (
	"context"
	"time"

	"missionctl/internal/config"
	"missionctl/internal/repo"
)

// ResolveUser loads workspace config and makes sure the acting user
// exists. User rows are created explicitly here rather than as a
// persistence side effect of the first mission write.
func ResolveUser(ctx context.Context, workspace, userID string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = "local-user"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.EnsureUser(ctx, nil, userID, "", now); err != nil {
		return nil, err
	}
	return cfg, nil
}
