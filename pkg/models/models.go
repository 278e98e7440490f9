// Package models holds the persistent entities owned by the Store and the
// transient payloads that flow between the Control Service and the Agent.
package models

import "time"

// ConnectorKind distinguishes a credentials/endpoint record's purpose.
type ConnectorKind string

const (
	ConnectorKindVcsHost         ConnectorKind = "VcsHost"
	ConnectorKindPackageRegistry ConnectorKind = "PackageRegistry"
)

// ConnectorStatus is the last-probed health of a Connector.
type ConnectorStatus string

const (
	ConnectorStatusUnknown ConnectorStatus = "Unknown"
	ConnectorStatusOk      ConnectorStatus = "Ok"
	ConnectorStatusError   ConnectorStatus = "Error"
)

// Connector represents credentials and an endpoint for one external system
// (a VCS host or a package registry). Exactly one row exists per Name.
type Connector struct {
	ID        int64           `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Kind      ConnectorKind   `json:"kind" db:"kind"`
	BaseURL   string          `json:"baseUrl" db:"base_url"`
	UserName  *string         `json:"userName,omitempty" db:"user_name"`
	Token     *string         `json:"token,omitempty" db:"token"`
	Status    ConnectorStatus `json:"status" db:"status"`
	Active    bool            `json:"active" db:"active"`
	LastError *string         `json:"lastError,omitempty" db:"last_error"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// RepositoryVisibility mirrors the VCS host's own visibility concept.
type RepositoryVisibility string

const (
	RepositoryVisibilityPublic  RepositoryVisibility = "Public"
	RepositoryVisibilityPrivate RepositoryVisibility = "Private"
)

// Repository is a VCS repository known to the system, unique per
// (ConnectorID, Owner, Name).
type Repository struct {
	ID          int64                `json:"id" db:"id"`
	ConnectorID int64                `json:"connectorId" db:"connector_id"`
	Owner       string               `json:"owner" db:"owner"`
	Name        string               `json:"name" db:"name"`
	Visibility  RepositoryVisibility `json:"visibility" db:"visibility"`
	CloneURL    string               `json:"cloneUrl" db:"clone_url"`
	CreatedAt   time.Time            `json:"createdAt" db:"created_at"`
}

// Workspace is a named grouping of repositories bound to a host-local root path.
type Workspace struct {
	ID           int64      `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	RootPath     *string    `json:"rootPath,omitempty" db:"root_path"`
	IsDefault    bool       `json:"isDefault" db:"is_default"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty" db:"last_synced_at"`
	IsInSync     bool       `json:"isInSync" db:"is_in_sync"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}

// SyncStatus is the per-link reconciliation state against the Agent's view
// of the repository on disk.
type SyncStatus string

const (
	SyncStatusNeedsSync       SyncStatus = "NeedsSync"
	SyncStatusInSync          SyncStatus = "InSync"
	SyncStatusNotCloned       SyncStatus = "NotCloned"
	SyncStatusVersionMismatch SyncStatus = "VersionMismatch"
	SyncStatusError           SyncStatus = "Error"
)

// WorkspaceRepositoryLink is a repository's membership in a workspace along
// with per-workspace mutable state. Unique on (WorkspaceID, RepositoryID).
type WorkspaceRepositoryLink struct {
	ID              int64      `json:"id" db:"id"`
	WorkspaceID     int64      `json:"workspaceId" db:"workspace_id"`
	RepositoryID    int64      `json:"repositoryId" db:"repository_id"`
	GitVersion      *string    `json:"gitVersion,omitempty" db:"git_version"`
	Branch          *string    `json:"branch,omitempty" db:"branch"`
	ProjectCount    *int32     `json:"projectCount,omitempty" db:"project_count"`
	Ahead           *int32     `json:"ahead,omitempty" db:"ahead"`
	Behind          *int32     `json:"behind,omitempty" db:"behind"`
	HasUpstream     *bool      `json:"hasUpstream,omitempty" db:"has_upstream"`
	SyncStatus      SyncStatus `json:"syncStatus" db:"sync_status"`
	DependencyLevel *int32     `json:"dependencyLevel,omitempty" db:"dependency_level"`
	Dependencies    *int32     `json:"dependencies,omitempty" db:"dependencies"`
	UnmatchedDeps   *int32     `json:"unmatchedDeps,omitempty" db:"unmatched_deps"`
	LastError       *string    `json:"lastError,omitempty" db:"last_error"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// NewWorkspaceRepositoryLink builds a link in the default state per §3:
// SyncStatus = NeedsSync, all numeric fields null.
func NewWorkspaceRepositoryLink(workspaceID, repositoryID int64) *WorkspaceRepositoryLink {
	return &WorkspaceRepositoryLink{
		WorkspaceID:  workspaceID,
		RepositoryID: repositoryID,
		SyncStatus:   SyncStatusNeedsSync,
	}
}

// RepositoryBranch is a per-link branch record. Unique on (LinkID, Name, IsRemote).
type RepositoryBranch struct {
	ID         int64     `json:"id" db:"id"`
	LinkID     int64     `json:"linkId" db:"link_id"`
	Name       string    `json:"name" db:"name"`
	IsRemote   bool      `json:"isRemote" db:"is_remote"`
	IsDefault  bool      `json:"isDefault" db:"is_default"`
	LastSeenAt time.Time `json:"lastSeenAt" db:"last_seen_at"`
}

// ProjectKind classifies a WorkspaceProject.
type ProjectKind string

const (
	ProjectKindExecutable ProjectKind = "Executable"
	ProjectKindTest       ProjectKind = "Test"
	ProjectKindService    ProjectKind = "Service"
	ProjectKindPackage    ProjectKind = "Package"
	ProjectKindLibrary    ProjectKind = "Library"
)

// WorkspaceProject is a project file found in a repository within a workspace.
// Merge key: (WorkspaceID, RepositoryID, Name).
type WorkspaceProject struct {
	ID                 int64       `json:"id" db:"id"`
	WorkspaceID        int64       `json:"workspaceId" db:"workspace_id"`
	RepositoryID       int64       `json:"repositoryId" db:"repository_id"`
	Name               string      `json:"name" db:"name"`
	Kind               ProjectKind `json:"kind" db:"kind"`
	RelativePath       string      `json:"relativePath" db:"relative_path"`
	TargetFramework    string      `json:"targetFramework" db:"target_framework"`
	PackageID          *string     `json:"packageId,omitempty" db:"package_id"`
	MatchedConnectorID *int64      `json:"matchedConnectorId,omitempty" db:"matched_connector_id"`
}

// ProjectReference is one package reference a project's own manifest
// declares, as parsed by the Project-File Parser. It is not itself a graph
// edge: the Dependency Solver resolves each reference's PackageID against
// other workspace projects' exporter identity to produce a
// ProjectDependency carrying the declared Version.
type ProjectReference struct {
	ID        int64  `json:"id" db:"id"`
	ProjectID int64  `json:"projectId" db:"project_id"`
	PackageID string `json:"packageId" db:"package_id"`
	Version   string `json:"version" db:"version"`
}

// ProjectDependency is a directed edge in the workspace-local DAG from a
// dependent project to a referenced project. At most one edge per
// (DependentID, ReferencedID); no self-edges.
type ProjectDependency struct {
	ID            int64  `json:"id" db:"id"`
	WorkspaceID   int64  `json:"workspaceId" db:"workspace_id"`
	DependentID   int64  `json:"dependentId" db:"dependent_project_id"`
	ReferencedID  int64  `json:"referencedId" db:"referenced_project_id"`
	VersionString string `json:"versionString" db:"version_string"`
}

// RequiredPackage is one package a repo needs present (at a given version)
// in its matched registry connector before it can be pushed.
type RequiredPackage struct {
	PackageID          string `json:"packageId"`
	Version            string `json:"version"`
	MatchedConnectorID *int64 `json:"matchedConnectorId,omitempty"`
}

// PushRepoPayload is the transient per-repo unit of the push plan.
type PushRepoPayload struct {
	RepoID           int64             `json:"repoId"`
	RepoName         string            `json:"repoName"`
	DependencyLevel  int32             `json:"dependencyLevel"`
	RequiredPackages []RequiredPackage `json:"requiredPackages"`
}
