package repositories_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/pkg/models"
)

func TestBranchRepository_ReplaceForLink_OverwritesPreviousSet(t *testing.T) {
	_, repos := setupDB(t)

	conn, err := repos.Connectors.Create(ctx, &models.Connector{Name: "github", Kind: models.ConnectorKindVcsHost, BaseURL: "https://github.com"})
	require.NoError(t, err)
	repo, err := repos.Repos.Create(ctx, &models.Repository{ConnectorID: conn.ID, Owner: "acme", Name: "widgets", CloneURL: "https://x/widgets.git"})
	require.NoError(t, err)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)
	link, err := repos.Links.GetOrCreate(ctx, ws.ID, repo.ID)
	require.NoError(t, err)

	require.NoError(t, repos.Branches.ReplaceForLink(ctx, link.ID, []models.RepositoryBranch{
		{Name: "main", IsRemote: false, IsDefault: true},
		{Name: "origin/main", IsRemote: true, IsDefault: true},
	}))

	list, err := repos.Branches.ListForLink(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, repos.Branches.ReplaceForLink(ctx, link.ID, []models.RepositoryBranch{
		{Name: "feature/x", IsRemote: false, IsDefault: false},
	}))

	list, err = repos.Branches.ListForLink(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "feature/x", list[0].Name)
}

func TestBranchRepository_ListForLink_OrdersByName(t *testing.T) {
	_, repos := setupDB(t)

	conn, err := repos.Connectors.Create(ctx, &models.Connector{Name: "github", Kind: models.ConnectorKindVcsHost, BaseURL: "https://github.com"})
	require.NoError(t, err)
	repo, err := repos.Repos.Create(ctx, &models.Repository{ConnectorID: conn.ID, Owner: "acme", Name: "widgets", CloneURL: "https://x/widgets.git"})
	require.NoError(t, err)
	ws, err := repos.Workspaces.Create(ctx, &models.Workspace{Name: "acme"})
	require.NoError(t, err)
	link, err := repos.Links.GetOrCreate(ctx, ws.ID, repo.ID)
	require.NoError(t, err)

	require.NoError(t, repos.Branches.ReplaceForLink(ctx, link.ID, []models.RepositoryBranch{
		{Name: "zeta"}, {Name: "alpha"},
	}))

	list, err := repos.Branches.ListForLink(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
}
