package depsolver

import (
	"context"
	"fmt"

	"graymoon/internal/db/repositories"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

// PersistProjects upserts the projects and their declared references parsed
// by the agent's Project-File Parser (spec C2) from a SyncRepository or
// RefreshRepositoryProjects result, mirroring handlers.go's persistBranches.
// It does not recompute the dependency graph; call Solve afterward.
func PersistProjects(ctx context.Context, repos *repositories.Repositories, workspaceID, repositoryID int64, projects []rpc.ProjectInfo) error {
	for _, p := range projects {
		saved, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{
			WorkspaceID:     workspaceID,
			RepositoryID:    repositoryID,
			Name:            p.Name,
			Kind:            p.Kind,
			RelativePath:    p.RelativePath,
			TargetFramework: p.TargetFramework,
			PackageID:       p.PackageID,
		})
		if err != nil {
			return fmt.Errorf("persist project %s: %w", p.Name, err)
		}

		refs := make([]models.ProjectReference, 0, len(p.References))
		for _, r := range p.References {
			refs = append(refs, models.ProjectReference{ProjectID: saved.ID, PackageID: r.PackageID, Version: r.Version})
		}
		if err := repos.References.ReplaceForProject(ctx, saved.ID, refs); err != nil {
			return fmt.Errorf("persist references for project %s: %w", p.Name, err)
		}
	}
	return nil
}
