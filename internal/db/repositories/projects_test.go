package repositories_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/pkg/models"
)

func TestProjectRepository_Upsert_InsertsNew(t *testing.T) {
	_, repos := setupDB(t)

	conn, err := repos.Connectors.Create(ctx, &models.Connector{Name: "github", Kind: models.ConnectorKindVcsHost, BaseURL: "https://github.com"})
	require.NoError(t, err)
	repo, err := repos.Repos.Create(ctx, &models.Repository{ConnectorID: conn.ID, Owner: "acme", Name: "widgets", CloneURL: "https://x/widgets.git"})
	require.NoError(t, err)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)

	pkgID := "Acme.Widgets.Core"
	p, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{
		WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "Acme.Widgets.Core",
		Kind: models.ProjectKindLibrary, RelativePath: "src/Core/Core.csproj", TargetFramework: "net8.0", PackageID: &pkgID,
	})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, models.ProjectKindLibrary, p.Kind)
}

func TestProjectRepository_Upsert_MergesOnRepeatByKey(t *testing.T) {
	_, repos := setupDB(t)

	conn, err := repos.Connectors.Create(ctx, &models.Connector{Name: "github", Kind: models.ConnectorKindVcsHost, BaseURL: "https://github.com"})
	require.NoError(t, err)
	repo, err := repos.Repos.Create(ctx, &models.Repository{ConnectorID: conn.ID, Owner: "acme", Name: "widgets", CloneURL: "https://x/widgets.git"})
	require.NoError(t, err)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)

	first, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{
		WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "Core", Kind: models.ProjectKindLibrary, RelativePath: "src/Core/Core.csproj",
	})
	require.NoError(t, err)

	second, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{
		WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "Core", Kind: models.ProjectKindExecutable, RelativePath: "src/Core/Core.csproj",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same (workspace, repo, name) key merges in place")
	assert.Equal(t, models.ProjectKindExecutable, second.Kind)

	list, err := repos.Projects.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestProjectRepository_SetMatchedConnector(t *testing.T) {
	_, repos := setupDB(t)

	conn, err := repos.Connectors.Create(ctx, &models.Connector{Name: "github", Kind: models.ConnectorKindVcsHost, BaseURL: "https://github.com"})
	require.NoError(t, err)
	registry, err := repos.Connectors.Create(ctx, &models.Connector{Name: "nuget", Kind: models.ConnectorKindPackageRegistry, BaseURL: "https://nuget.example.com"})
	require.NoError(t, err)
	repo, err := repos.Repos.Create(ctx, &models.Repository{ConnectorID: conn.ID, Owner: "acme", Name: "widgets", CloneURL: "https://x/widgets.git"})
	require.NoError(t, err)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)

	p, err := repos.Projects.Upsert(ctx, &models.WorkspaceProject{WorkspaceID: ws.ID, RepositoryID: repo.ID, Name: "Core", Kind: models.ProjectKindLibrary, RelativePath: "src/Core/Core.csproj"})
	require.NoError(t, err)

	require.NoError(t, repos.Projects.SetMatchedConnector(ctx, p.ID, &registry.ID))

	list, err := repos.Projects.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].MatchedConnectorID)
	assert.Equal(t, registry.ID, *list[0].MatchedConnectorID)
}
