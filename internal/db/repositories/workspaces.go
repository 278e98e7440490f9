package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"graymoon/internal/db"
	"graymoon/internal/graymoonerr"
	"graymoon/pkg/models"
)

// WorkspaceRepository persists models.Workspace rows.
type WorkspaceRepository struct {
	db *sql.DB
}

func (r *WorkspaceRepository) Create(ctx context.Context, w *models.Workspace) (*models.Workspace, error) {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO workspaces (name, root_path, is_default, is_in_sync) VALUES (?, ?, ?, 0)`,
		w.Name, w.RootPath, w.IsDefault)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *WorkspaceRepository) Get(ctx context.Context, id int64) (*models.Workspace, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, is_default, last_synced_at, is_in_sync, created_at
		FROM workspaces WHERE id = ?`, id)
	return scanWorkspace(row)
}

func (r *WorkspaceRepository) GetByName(ctx context.Context, name string) (*models.Workspace, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, is_default, last_synced_at, is_in_sync, created_at
		FROM workspaces WHERE name = ?`, name)
	return scanWorkspace(row)
}

func (r *WorkspaceRepository) List(ctx context.Context) ([]*models.Workspace, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, root_path, is_default, last_synced_at, is_in_sync, created_at
		FROM workspaces ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*models.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *WorkspaceRepository) MarkSynced(ctx context.Context, id int64, inSync bool) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx, `
		UPDATE workspaces SET is_in_sync = ?, last_synced_at = CURRENT_TIMESTAMP WHERE id = ?`, inSync, id)
	if err != nil {
		return fmt.Errorf("mark workspace synced: %w", err)
	}
	return nil
}

func scanWorkspace(row rowScanner) (*models.Workspace, error) {
	var w models.Workspace
	err := row.Scan(&w.ID, &w.Name, &w.RootPath, &w.IsDefault, &w.LastSyncedAt, &w.IsInSync, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, graymoonerr.NotFound("workspace", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	return &w, nil
}
