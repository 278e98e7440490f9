// Package repositories implements hand-written database/sql repositories
// for the GrayMoon entities. The teacher generates its query layer with
// sqlc (internal/db/repositories/base.go wraps a `queries.Queries` struct
// produced by `sqlc generate`); the generated `queries` package was not
// retrieved into this corpus and there is no sqlc toolchain available to
// regenerate it, so these repositories are hand-written database/sql
// instead, kept in the same repo-per-entity aggregate shape as the teacher.
package repositories

import (
	"database/sql"
)

// Repositories aggregates one repository per entity, mirroring the
// teacher's Repositories struct (internal/db/repositories/base.go).
type Repositories struct {
	Connectors   *ConnectorRepository
	Repos        *RepositoryRepository
	Workspaces   *WorkspaceRepository
	Links        *LinkRepository
	Branches     *BranchRepository
	Projects     *ProjectRepository
	Dependencies *DependencyRepository
	References   *ReferenceRepository
}

// New builds a Repositories aggregate bound to a single *sql.DB connection.
func New(conn *sql.DB) *Repositories {
	return &Repositories{
		Connectors:   &ConnectorRepository{db: conn},
		Repos:        &RepositoryRepository{db: conn},
		Workspaces:   &WorkspaceRepository{db: conn},
		Links:        &LinkRepository{db: conn},
		Branches:     &BranchRepository{db: conn},
		Projects:     &ProjectRepository{db: conn},
		Dependencies: &DependencyRepository{db: conn},
		References:   &ReferenceRepository{db: conn},
	}
}
