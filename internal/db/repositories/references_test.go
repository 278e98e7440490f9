package repositories_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/pkg/models"
)

func TestReferenceRepository_ReplaceForProject_AndListByWorkspace(t *testing.T) {
	_, repos := setupDB(t)

	conn, err := repos.Connectors.Create(ctx, &models.Connector{Name: "github", Kind: models.ConnectorKindVcsHost, BaseURL: "https://github.com"})
	require.NoError(t, err)
	repo, err := repos.Repos.Create(ctx, &models.Repository{ConnectorID: conn.ID, Owner: "acme", Name: "widgets", CloneURL: "https://x/widgets.git"})
	require.NoError(t, err)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)
	p, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{
		WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "Acme.Web", Kind: models.ProjectKindExecutable, RelativePath: "src/Web/Web.csproj",
	})
	require.NoError(t, err)

	require.NoError(t, repos.References.ReplaceForProject(ctx, p.ID, []models.ProjectReference{
		{ProjectID: p.ID, PackageID: "Acme.Core", Version: "1.2.3"},
		{ProjectID: p.ID, PackageID: "Acme.Utils", Version: "0.9.0"},
	}))

	byProject, err := repos.References.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Contains(t, byProject, p.ID)
	assert.Len(t, byProject[p.ID], 2)
}

func TestReferenceRepository_ReplaceForProject_OverwritesPreviousSet(t *testing.T) {
	_, repos := setupDB(t)

	conn, err := repos.Connectors.Create(ctx, &models.Connector{Name: "github", Kind: models.ConnectorKindVcsHost, BaseURL: "https://github.com"})
	require.NoError(t, err)
	repo, err := repos.Repos.Create(ctx, &models.Repository{ConnectorID: conn.ID, Owner: "acme", Name: "widgets", CloneURL: "https://x/widgets.git"})
	require.NoError(t, err)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)
	p, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{
		WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "Acme.Web", Kind: models.ProjectKindExecutable, RelativePath: "src/Web/Web.csproj",
	})
	require.NoError(t, err)

	require.NoError(t, repos.References.ReplaceForProject(ctx, p.ID, []models.ProjectReference{
		{ProjectID: p.ID, PackageID: "Acme.Core", Version: "1.0.0"},
	}))
	require.NoError(t, repos.References.ReplaceForProject(ctx, p.ID, []models.ProjectReference{
		{ProjectID: p.ID, PackageID: "Acme.Core", Version: "1.1.0"},
	}))

	byProject, err := repos.References.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, byProject[p.ID], 1)
	assert.Equal(t, "1.1.0", byProject[p.ID][0].Version)
}

func TestReferenceRepository_ListByWorkspace_EmptyForUnknownProject(t *testing.T) {
	_, repos := setupDB(t)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)

	byProject, err := repos.References.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Empty(t, byProject)
}
