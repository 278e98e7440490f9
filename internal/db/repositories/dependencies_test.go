package repositories_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/pkg/models"
)

func TestDependencyRepository_ReplaceForWorkspace_SkipsSelfEdges(t *testing.T) {
	_, repos := setupDB(t)

	conn, err := repos.Connectors.Create(ctx, &models.Connector{Name: "github", Kind: models.ConnectorKindVcsHost, BaseURL: "https://github.com"})
	require.NoError(t, err)
	repo, err := repos.Repos.Create(ctx, &models.Repository{ConnectorID: conn.ID, Owner: "acme", Name: "widgets", CloneURL: "https://x/widgets.git"})
	require.NoError(t, err)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)

	a, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "A", Kind: models.ProjectKindLibrary, RelativePath: "A.csproj"})
	require.NoError(t, err)
	b, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "B", Kind: models.ProjectKindLibrary, RelativePath: "B.csproj"})
	require.NoError(t, err)

	err = repos.Dependencies.ReplaceForWorkspace(ctx, ws.ID, []models.ProjectDependency{
		{WorkspaceID: ws.ID, DependentID: a.ID, ReferencedID: b.ID, VersionString: "1.0.0"},
		{WorkspaceID: ws.ID, DependentID: a.ID, ReferencedID: a.ID, VersionString: "1.0.0"},
	})
	require.NoError(t, err)

	list, err := repos.Dependencies.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].DependentID)
	assert.Equal(t, b.ID, list[0].ReferencedID)
}

func TestDependencyRepository_ReplaceForWorkspace_OverwritesEntireSet(t *testing.T) {
	_, repos := setupDB(t)

	conn, err := repos.Connectors.Create(ctx, &models.Connector{Name: "github", Kind: models.ConnectorKindVcsHost, BaseURL: "https://github.com"})
	require.NoError(t, err)
	repo, err := repos.Repos.Create(ctx, &models.Repository{ConnectorID: conn.ID, Owner: "acme", Name: "widgets", CloneURL: "https://x/widgets.git"})
	require.NoError(t, err)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)

	a, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "A", Kind: models.ProjectKindLibrary, RelativePath: "A.csproj"})
	require.NoError(t, err)
	b, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "B", Kind: models.ProjectKindLibrary, RelativePath: "B.csproj"})
	require.NoError(t, err)
	c, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "C", Kind: models.ProjectKindLibrary, RelativePath: "C.csproj"})
	require.NoError(t, err)

	require.NoError(t, repos.Dependencies.ReplaceForWorkspace(ctx, ws.ID, []models.ProjectDependency{
		{WorkspaceID: ws.ID, DependentID: a.ID, ReferencedID: b.ID, VersionString: "1.0.0"},
	}))
	require.NoError(t, repos.Dependencies.ReplaceForWorkspace(ctx, ws.ID, []models.ProjectDependency{
		{WorkspaceID: ws.ID, DependentID: a.ID, ReferencedID: c.ID, VersionString: "2.0.0"},
	}))

	list, err := repos.Dependencies.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ReferencedID)
	assert.Equal(t, "2.0.0", list[0].VersionString)
}
