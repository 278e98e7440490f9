package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"graymoon/internal/db"
	"graymoon/internal/graymoonerr"
	"graymoon/pkg/models"
)

// ConnectorRepository persists models.Connector rows.
type ConnectorRepository struct {
	db *sql.DB
}

func (r *ConnectorRepository) Create(ctx context.Context, c *models.Connector) (*models.Connector, error) {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO connectors (name, kind, base_url, user_name, token, status, active, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Kind, c.BaseURL, c.UserName, c.Token, statusOrUnknown(c.Status), c.Active, c.LastError)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	return r.Get(ctx, id)
}

func statusOrUnknown(s models.ConnectorStatus) models.ConnectorStatus {
	if s == "" {
		return models.ConnectorStatusUnknown
	}
	return s
}

func (r *ConnectorRepository) Get(ctx context.Context, id int64) (*models.Connector, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, kind, base_url, user_name, token, status, active, last_error, created_at, updated_at
		FROM connectors WHERE id = ?`, id)
	return scanConnector(row)
}

func (r *ConnectorRepository) GetByName(ctx context.Context, name string) (*models.Connector, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, kind, base_url, user_name, token, status, active, last_error, created_at, updated_at
		FROM connectors WHERE name = ?`, name)
	return scanConnector(row)
}

func (r *ConnectorRepository) ListActiveByKind(ctx context.Context, kind models.ConnectorKind) ([]*models.Connector, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, kind, base_url, user_name, token, status, active, last_error, created_at, updated_at
		FROM connectors WHERE kind = ? AND active = 1 ORDER BY id ASC`, kind)
	if err != nil {
		return nil, fmt.Errorf("list connectors: %w", err)
	}
	defer rows.Close()

	var out []*models.Connector
	for rows.Next() {
		c, err := scanConnector(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ConnectorRepository) UpdateStatus(ctx context.Context, id int64, status models.ConnectorStatus, lastError *string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx, `
		UPDATE connectors SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, lastError, id)
	if err != nil {
		return fmt.Errorf("update connector status: %w", err)
	}
	return nil
}

func (r *ConnectorRepository) Delete(ctx context.Context, id int64) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM connectors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete connector: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return graymoonerr.NotFound("connector", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnector(row rowScanner) (*models.Connector, error) {
	var c models.Connector
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &c.BaseURL, &c.UserName, &c.Token, &c.Status, &c.Active, &c.LastError, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, graymoonerr.NotFound("connector", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan connector: %w", err)
	}
	return &c, nil
}
