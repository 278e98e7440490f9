package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"graymoon/internal/db"
	"graymoon/pkg/models"
)

// ReferenceRepository persists models.ProjectReference rows: the package
// references a project's own manifest declares, as parsed by the agent's
// Project-File Parser, carried through so the Dependency Solver can record
// a real declared version on each ProjectDependency edge.
type ReferenceRepository struct {
	db *sql.DB
}

// ReplaceForProject recomputes the full reference set for one project,
// called each time that project is re-parsed.
func (r *ReferenceRepository) ReplaceForProject(ctx context.Context, projectID int64, refs []models.ProjectReference) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace project references: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_references WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("replace project references: %w", err)
	}
	for _, ref := range refs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_references (project_id, package_id, version) VALUES (?, ?, ?)`,
			projectID, ref.PackageID, ref.Version); err != nil {
			return fmt.Errorf("replace project references: %w", err)
		}
	}
	return tx.Commit()
}

// ListByWorkspace returns every reference recorded for any project in the
// workspace, keyed by project id, for the Dependency Solver's edge pass.
func (r *ReferenceRepository) ListByWorkspace(ctx context.Context, workspaceID int64) (map[int64][]models.ProjectReference, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pr.id, pr.project_id, pr.package_id, pr.version
		FROM project_references pr
		JOIN workspace_projects wp ON wp.id = pr.project_id
		WHERE wp.workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list project references: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]models.ProjectReference)
	for rows.Next() {
		var ref models.ProjectReference
		if err := rows.Scan(&ref.ID, &ref.ProjectID, &ref.PackageID, &ref.Version); err != nil {
			return nil, fmt.Errorf("scan project reference: %w", err)
		}
		out[ref.ProjectID] = append(out[ref.ProjectID], ref)
	}
	return out, rows.Err()
}
