package app

import (
	"context"
	"errors"
	"fmt"

	"caregate/internal/config"
	"caregate/internal/repo"
)

// ResolveOrgAndConfig picks the active org and ensures its config exists in DB,
// seeding from the workspace caregate.yml (or the built-in default) when missing.
// It prefers the override, then the single org stored in DB.
func ResolveOrgAndConfig(ctx context.Context, workspace, orgOverride string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, fmt.Errorf("load %s: %w", config.FileName, err)
	}
	orgID := orgOverride
	if orgID == "" && fileCfg != nil {
		orgID = fileCfg.Org.ID
	}
	if orgID == "" {
		id, err := r.SingleOrg(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil, fmt.Errorf("org not specified; use --org or create %s", config.FileName)
			}
			return "", nil, err
		}
		orgID = id
	}

	cfg, err := r.GetOrgConfig(ctx, orgID)
	if err == nil {
		return orgID, cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return "", nil, err
	}
	seed := config.Default(orgID)
	if fileCfg != nil && fileCfg.Org.ID == orgID {
		seed = fileCfg
	}
	if err := r.UpsertOrgConfig(ctx, orgID, seed); err != nil {
		return "", nil, fmt.Errorf("seed org config: %w", err)
	}
	return orgID, seed, nil
}
