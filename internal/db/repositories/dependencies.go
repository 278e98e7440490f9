package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"graymoon/internal/db"
	"graymoon/pkg/models"
)

// DependencyRepository persists models.ProjectDependency edges.
type DependencyRepository struct {
	db *sql.DB
}

// ReplaceForWorkspace recomputes the full edge set for a workspace, used by
// the Dependency Solver after each (re)parse.
func (r *DependencyRepository) ReplaceForWorkspace(ctx context.Context, workspaceID int64, edges []models.ProjectDependency) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace dependencies: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_dependencies WHERE workspace_id = ?`, workspaceID); err != nil {
		return fmt.Errorf("replace dependencies: %w", err)
	}
	for _, e := range edges {
		if e.DependentID == e.ReferencedID {
			continue // invariant: no self-edges
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_dependencies (workspace_id, dependent_project_id, referenced_project_id, version_string)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (dependent_project_id, referenced_project_id) DO UPDATE SET version_string = excluded.version_string`,
			workspaceID, e.DependentID, e.ReferencedID, e.VersionString); err != nil {
			return fmt.Errorf("replace dependencies: %w", err)
		}
	}
	return tx.Commit()
}

func (r *DependencyRepository) ListByWorkspace(ctx context.Context, workspaceID int64) ([]*models.ProjectDependency, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workspace_id, dependent_project_id, referenced_project_id, version_string
		FROM project_dependencies WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var out []*models.ProjectDependency
	for rows.Next() {
		var d models.ProjectDependency
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.DependentID, &d.ReferencedID, &d.VersionString); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
