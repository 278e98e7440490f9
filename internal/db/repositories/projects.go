package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"graymoon/internal/db"
	"graymoon/internal/graymoonerr"
	"graymoon/pkg/models"
)

// ProjectRepository persists models.WorkspaceProject rows.
type ProjectRepository struct {
	db *sql.DB
}

// Upsert merges a parsed project by its (workspace, repository, name) key,
// matching spec §3's WorkspaceProject merge key.
func (r *ProjectRepository) Upsert(ctx context.Context, p *models.WorkspaceProject) (*models.WorkspaceProject, error) {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workspace_projects (workspace_id, repository_id, name, kind, relative_path, target_framework, package_id, matched_connector_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, repository_id, name) DO UPDATE SET
			kind = excluded.kind,
			relative_path = excluded.relative_path,
			target_framework = excluded.target_framework,
			package_id = excluded.package_id`,
		p.WorkspaceID, p.RepositoryID, p.Name, p.Kind, p.RelativePath, p.TargetFramework, p.PackageID, p.MatchedConnectorID)
	if err != nil {
		return nil, fmt.Errorf("upsert project: %w", err)
	}
	row := r.db.QueryRowContext(ctx, projectSelect+` WHERE workspace_id = ? AND repository_id = ? AND name = ?`,
		p.WorkspaceID, p.RepositoryID, p.Name)
	return scanProject(row)
}

func (r *ProjectRepository) ListByWorkspace(ctx context.Context, workspaceID int64) ([]*models.WorkspaceProject, error) {
	rows, err := r.db.QueryContext(ctx, projectSelect+` WHERE workspace_id = ? ORDER BY repository_id ASC, name ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkspaceProject
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProjectRepository) SetMatchedConnector(ctx context.Context, id int64, connectorID *int64) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx, `UPDATE workspace_projects SET matched_connector_id = ? WHERE id = ?`, connectorID, id)
	if err != nil {
		return fmt.Errorf("set matched connector: %w", err)
	}
	return nil
}

const projectSelect = `
	SELECT id, workspace_id, repository_id, name, kind, relative_path, target_framework, package_id, matched_connector_id
	FROM workspace_projects`

func scanProject(row rowScanner) (*models.WorkspaceProject, error) {
	var p models.WorkspaceProject
	err := row.Scan(&p.ID, &p.WorkspaceID, &p.RepositoryID, &p.Name, &p.Kind, &p.RelativePath, &p.TargetFramework, &p.PackageID, &p.MatchedConnectorID)
	if err == sql.ErrNoRows {
		return nil, graymoonerr.NotFound("workspace_project", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}
