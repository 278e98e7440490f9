package rpc

import "graymoon/pkg/models"

// Command name constants, the static contract the Command Dispatcher (C4)
// maps onto typed handlers.
const (
	CmdSyncRepository            = "SyncRepository"
	CmdRefreshRepositoryVersion  = "RefreshRepositoryVersion"
	CmdRefreshRepositoryProjects = "RefreshRepositoryProjects"
	CmdEnsureWorkspace           = "EnsureWorkspace"
	CmdGetWorkspaceRepositories  = "GetWorkspaceRepositories"
	CmdGetWorkspaceExists        = "GetWorkspaceExists"
	CmdGetRepositoryVersion      = "GetRepositoryVersion"
	CmdPushRepository            = "PushRepository"
	CmdCommitSyncRepository      = "CommitSyncRepository"
	CmdSyncRepositoryDependencies = "SyncRepositoryDependencies"
	CmdCheckoutBranch            = "CheckoutBranch"
	CmdCreateBranch              = "CreateBranch"
	CmdSyncToDefaultBranch       = "SyncToDefaultBranch"
	CmdRefreshBranches           = "RefreshBranches"
)

// BranchInfo describes one local or remote branch observed by the VCS Executor.
type BranchInfo struct {
	Name     string `json:"name"`
	IsRemote bool   `json:"isRemote"`
	Default  bool   `json:"default"`
}

// ProjectInfo is the wire shape of a parsed project file.
type ProjectInfo struct {
	Name            string                `json:"name"`
	Kind            models.ProjectKind    `json:"kind"`
	RelativePath    string                `json:"relativePath"`
	TargetFramework string                `json:"targetFramework"`
	PackageID       *string               `json:"packageId,omitempty"`
	References      []ProjectReferenceRef `json:"references,omitempty"`
}

// ProjectReferenceRef is one declared package reference inside a project file.
type ProjectReferenceRef struct {
	PackageID string `json:"packageId"`
	Version   string `json:"version"`
}

type SyncRepositoryRequest struct {
	WorkspaceName string  `json:"workspaceName"`
	WorkspaceID   int64   `json:"workspaceId"`
	WorkspaceRoot string  `json:"workspaceRoot"`
	RepositoryID  int64   `json:"repositoryId"`
	RepositoryName string `json:"repositoryName"`
	CloneURL      string  `json:"cloneUrl"`
	Token         *string `json:"token,omitempty"`
}

type SyncRepositoryResult struct {
	Version         string        `json:"version"`
	Branch          string        `json:"branch"`
	WasCloned       bool          `json:"wasCloned"`
	Projects        []ProjectInfo `json:"projects"`
	Ahead           int32         `json:"ahead"`
	Behind          int32         `json:"behind"`
	LocalBranches   []BranchInfo  `json:"localBranches"`
	RemoteBranches  []BranchInfo  `json:"remoteBranches"`
}

type RefreshRepositoryVersionRequest struct {
	WorkspaceName  string `json:"workspaceName"`
	WorkspaceRoot  string `json:"workspaceRoot"`
	RepositoryName string `json:"repositoryName"`
}

type RefreshRepositoryVersionResult struct {
	Version     string       `json:"version"`
	Branch      string       `json:"branch"`
	Ahead       int32        `json:"ahead"`
	Behind      int32        `json:"behind"`
	HasUpstream bool         `json:"hasUpstream"`
	Branches    []BranchInfo `json:"branches"`
}

type RefreshRepositoryProjectsRequest struct {
	WorkspaceRoot  string `json:"workspaceRoot"`
	RepositoryName string `json:"repositoryName"`
}

type RefreshRepositoryProjectsResult struct {
	Projects []ProjectInfo `json:"projects"`
}

type EnsureWorkspaceRequest struct {
	WorkspaceName string `json:"workspaceName"`
	WorkspaceRoot string `json:"workspaceRoot"`
}

type EnsureWorkspaceResult struct{}

type GetWorkspaceRepositoriesRequest struct {
	WorkspaceRoot string `json:"workspaceRoot"`
}

type GetWorkspaceRepositoriesResult struct {
	RepoNames  []string `json:"repoNames"`
	OriginURLs []string `json:"originUrls"`
}

type GetWorkspaceExistsRequest struct {
	WorkspaceRoot string `json:"workspaceRoot"`
}

type GetWorkspaceExistsResult struct {
	Exists bool `json:"exists"`
}

type GetRepositoryVersionRequest struct {
	WorkspaceRoot  string `json:"workspaceRoot"`
	RepositoryName string `json:"repositoryName"`
}

type GetRepositoryVersionResult struct {
	Exists  bool   `json:"exists"`
	Version string `json:"version"`
	Branch  string `json:"branch"`
}

type PushRepositoryRequest struct {
	WorkspaceName  string  `json:"workspaceName"`
	WorkspaceRoot  string  `json:"workspaceRoot"`
	RepositoryID   int64   `json:"repositoryId"`
	RepositoryName string  `json:"repositoryName"`
	Token          *string `json:"token,omitempty"`
	Branch         *string `json:"branch,omitempty"`
}

type PushRepositoryResult struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type CommitSyncRepositoryRequest struct {
	WorkspaceName  string  `json:"workspaceName"`
	WorkspaceRoot  string  `json:"workspaceRoot"`
	RepositoryName string  `json:"repositoryName"`
	Token          *string `json:"token,omitempty"`
}

type CommitSyncRepositoryResult struct {
	Strategy string `json:"strategy"` // "rebase" | "merge"
	Version  string `json:"version"`
	Branch   string `json:"branch"`
}

type DependencyUpdate struct {
	RelativePath  string `json:"relativePath"`
	PackageID     string `json:"packageId"`
	OldVersion    string `json:"oldVersion"`
	NewVersion    string `json:"newVersion"`
}

type SyncRepositoryDependenciesRequest struct {
	WorkspaceRoot  string             `json:"workspaceRoot"`
	RepositoryName string             `json:"repositoryName"`
	Updates        []DependencyUpdate `json:"updates"`
}

type SyncRepositoryDependenciesResult struct {
	UpdatedCount int `json:"updatedCount"`
}

type CheckoutBranchRequest struct {
	WorkspaceRoot  string `json:"workspaceRoot"`
	RepositoryName string `json:"repositoryName"`
	Branch         string `json:"branch"`
}

type CreateBranchRequest struct {
	WorkspaceRoot  string `json:"workspaceRoot"`
	RepositoryName string `json:"repositoryName"`
	Branch         string `json:"branch"`
	From           string `json:"from"`
}

type SyncToDefaultBranchRequest struct {
	WorkspaceRoot  string `json:"workspaceRoot"`
	RepositoryName string `json:"repositoryName"`
}

type RefreshBranchesRequest struct {
	WorkspaceRoot  string `json:"workspaceRoot"`
	RepositoryName string `json:"repositoryName"`
}

type RefreshBranchesResult struct {
	Branches []BranchInfo `json:"branches"`
}

type BranchOpResult struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Branches     []BranchInfo `json:"branches,omitempty"`
}
