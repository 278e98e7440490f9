package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"graymoon/internal/db"
	"graymoon/internal/graymoonerr"
	"graymoon/pkg/models"
)

// LinkRepository persists models.WorkspaceRepositoryLink rows.
type LinkRepository struct {
	db *sql.DB
}

// GetOrCreate returns the existing link for (workspaceID, repositoryID),
// creating one in the default NeedsSync state if absent (spec §3).
func (r *LinkRepository) GetOrCreate(ctx context.Context, workspaceID, repositoryID int64) (*models.WorkspaceRepositoryLink, error) {
	link, err := r.GetByWorkspaceAndRepo(ctx, workspaceID, repositoryID)
	if err == nil {
		return link, nil
	}
	if graymoonerr.Classify(err) != graymoonerr.KindNotFound {
		return nil, err
	}

	db.SQLiteWriteMutex.Lock()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO workspace_repository_links (workspace_id, repository_id, sync_status)
		VALUES (?, ?, ?)`, workspaceID, repositoryID, models.SyncStatusNeedsSync)
	db.SQLiteWriteMutex.Unlock()
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *LinkRepository) Get(ctx context.Context, id int64) (*models.WorkspaceRepositoryLink, error) {
	row := r.db.QueryRowContext(ctx, linkSelect+` WHERE id = ?`, id)
	return scanLink(row)
}

func (r *LinkRepository) GetByWorkspaceAndRepo(ctx context.Context, workspaceID, repositoryID int64) (*models.WorkspaceRepositoryLink, error) {
	row := r.db.QueryRowContext(ctx, linkSelect+` WHERE workspace_id = ? AND repository_id = ?`, workspaceID, repositoryID)
	return scanLink(row)
}

func (r *LinkRepository) ListByWorkspace(ctx context.Context, workspaceID int64) ([]*models.WorkspaceRepositoryLink, error) {
	rows, err := r.db.QueryContext(ctx, linkSelect+` WHERE workspace_id = ? ORDER BY repository_id ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkspaceRepositoryLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateSyncResult persists the outcome of a sync/refresh command.
func (r *LinkRepository) UpdateSyncResult(ctx context.Context, id int64, version, branch string, ahead, behind int32, hasUpstream bool, projectCount *int32, status models.SyncStatus, lastError *string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx, `
		UPDATE workspace_repository_links
		SET git_version = ?, branch = ?, ahead = ?, behind = ?, has_upstream = ?,
		    project_count = COALESCE(?, project_count), sync_status = ?, last_error = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		version, branch, ahead, behind, hasUpstream, projectCount, status, lastError, id)
	if err != nil {
		return fmt.Errorf("update link sync result: %w", err)
	}
	return nil
}

// UpdateDependencyInfo persists the Dependency Solver's output for one link.
func (r *LinkRepository) UpdateDependencyInfo(ctx context.Context, id int64, level *int32, dependencies, unmatchedDeps int32) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx, `
		UPDATE workspace_repository_links
		SET dependency_level = ?, dependencies = ?, unmatched_deps = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, level, dependencies, unmatchedDeps, id)
	if err != nil {
		return fmt.Errorf("update link dependency info: %w", err)
	}
	return nil
}

// SetError marks a link Error with a last-error message, used by the Push
// Scheduler and Sync Queue on transport/push failure.
func (r *LinkRepository) SetError(ctx context.Context, id int64, message string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx, `
		UPDATE workspace_repository_links SET sync_status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		models.SyncStatusError, message, id)
	if err != nil {
		return fmt.Errorf("set link error: %w", err)
	}
	return nil
}

const linkSelect = `
	SELECT id, workspace_id, repository_id, git_version, branch, project_count, ahead, behind,
	       has_upstream, sync_status, dependency_level, dependencies, unmatched_deps, last_error,
	       created_at, updated_at
	FROM workspace_repository_links`

func scanLink(row rowScanner) (*models.WorkspaceRepositoryLink, error) {
	var l models.WorkspaceRepositoryLink
	err := row.Scan(&l.ID, &l.WorkspaceID, &l.RepositoryID, &l.GitVersion, &l.Branch, &l.ProjectCount,
		&l.Ahead, &l.Behind, &l.HasUpstream, &l.SyncStatus, &l.DependencyLevel, &l.Dependencies,
		&l.UnmatchedDeps, &l.LastError, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, graymoonerr.NotFound("workspace_repository_link", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan link: %w", err)
	}
	return &l, nil
}
