package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"graymoon/internal/db"
	"graymoon/pkg/models"
)

// BranchRepository persists models.RepositoryBranch rows.
type BranchRepository struct {
	db *sql.DB
}

// ReplaceForLink overwrites the branch set for a link with a freshly
// observed set, matching the Agent's RefreshBranches contract.
func (r *BranchRepository) ReplaceForLink(ctx context.Context, linkID int64, branches []models.RepositoryBranch) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace branches: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM repository_branches WHERE link_id = ?`, linkID); err != nil {
		return fmt.Errorf("replace branches: %w", err)
	}
	for _, b := range branches {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO repository_branches (link_id, name, is_remote, is_default, last_seen_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`, linkID, b.Name, b.IsRemote, b.IsDefault); err != nil {
			return fmt.Errorf("replace branches: %w", err)
		}
	}
	return tx.Commit()
}

func (r *BranchRepository) ListForLink(ctx context.Context, linkID int64) ([]*models.RepositoryBranch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, link_id, name, is_remote, is_default, last_seen_at
		FROM repository_branches WHERE link_id = ? ORDER BY name ASC`, linkID)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var out []*models.RepositoryBranch
	for rows.Next() {
		var b models.RepositoryBranch
		if err := rows.Scan(&b.ID, &b.LinkID, &b.Name, &b.IsRemote, &b.IsDefault, &b.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
