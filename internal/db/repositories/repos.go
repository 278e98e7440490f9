package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"graymoon/internal/db"
	"graymoon/internal/graymoonerr"
	"graymoon/pkg/models"
)

// RepositoryRepository persists models.Repository rows.
type RepositoryRepository struct {
	db *sql.DB
}

func (r *RepositoryRepository) Create(ctx context.Context, repo *models.Repository) (*models.Repository, error) {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO repositories (connector_id, owner, name, visibility, clone_url)
		VALUES (?, ?, ?, ?, ?)`,
		repo.ConnectorID, repo.Owner, repo.Name, repo.Visibility, repo.CloneURL)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *RepositoryRepository) Get(ctx context.Context, id int64) (*models.Repository, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, connector_id, owner, name, visibility, clone_url, created_at FROM repositories WHERE id = ?`, id)
	return scanRepository(row)
}

func (r *RepositoryRepository) ListByWorkspace(ctx context.Context, workspaceID int64) ([]*models.Repository, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.connector_id, r.owner, r.name, r.visibility, r.clone_url, r.created_at
		FROM repositories r
		JOIN workspace_repository_links l ON l.repository_id = r.id
		WHERE l.workspace_id = ? ORDER BY r.name ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list repositories by workspace: %w", err)
	}
	defer rows.Close()

	var out []*models.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

func scanRepository(row rowScanner) (*models.Repository, error) {
	var repo models.Repository
	err := row.Scan(&repo.ID, &repo.ConnectorID, &repo.Owner, &repo.Name, &repo.Visibility, &repo.CloneURL, &repo.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, graymoonerr.NotFound("repository", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}
	return &repo, nil
}
