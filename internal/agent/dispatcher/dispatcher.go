// Package dispatcher is the Command Dispatcher (spec C4): a static mapping
// from command name to a handler taking a typed request and returning a
// typed result. The RPC Link passes a command's args through as raw JSON;
// each handler here receives that json.RawMessage and decodes it once, via
// decode, into its typed request before doing any work. The VCS Executor
// and the project parser below the handlers only see typed values.
package dispatcher

import (
	"context"
	"encoding/json"
	"path/filepath"

	"graymoon/internal/agent/projectparser"
	"graymoon/internal/agent/vcsexec"
	"graymoon/internal/graymoonerr"
	"graymoon/pkg/rpc"
)

// Dispatcher owns the command name -> handler mapping and the VCS Executor
// it delegates to.
type Dispatcher struct {
	vcs *vcsexec.Executor
}

func New(vcs *vcsexec.Executor) *Dispatcher {
	return &Dispatcher{vcs: vcs}
}

type handlerFunc func(d *Dispatcher, ctx context.Context, args json.RawMessage) (any, error)

var handlers = map[string]handlerFunc{
	rpc.CmdSyncRepository:             (*Dispatcher).handleSyncRepository,
	rpc.CmdRefreshRepositoryVersion:   (*Dispatcher).handleRefreshRepositoryVersion,
	rpc.CmdRefreshRepositoryProjects:  (*Dispatcher).handleRefreshRepositoryProjects,
	rpc.CmdEnsureWorkspace:            (*Dispatcher).handleEnsureWorkspace,
	rpc.CmdGetWorkspaceRepositories:   (*Dispatcher).handleGetWorkspaceRepositories,
	rpc.CmdGetWorkspaceExists:         (*Dispatcher).handleGetWorkspaceExists,
	rpc.CmdGetRepositoryVersion:       (*Dispatcher).handleGetRepositoryVersion,
	rpc.CmdPushRepository:             (*Dispatcher).handlePushRepository,
	rpc.CmdCommitSyncRepository:       (*Dispatcher).handleCommitSyncRepository,
	rpc.CmdSyncRepositoryDependencies: (*Dispatcher).handleSyncRepositoryDependencies,
	rpc.CmdCheckoutBranch:             (*Dispatcher).handleCheckoutBranch,
	rpc.CmdCreateBranch:               (*Dispatcher).handleCreateBranch,
	rpc.CmdSyncToDefaultBranch:        (*Dispatcher).handleSyncToDefaultBranch,
	rpc.CmdRefreshBranches:            (*Dispatcher).handleRefreshBranches,
}

// Dispatch looks up the handler for command and invokes it with argsJSON,
// which the handler decodes into its typed request; it returns the typed
// result (the caller marshals it back to JSON for ResponseCommand.Data).
// Unknown command -> UnknownCommand.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, argsJSON json.RawMessage) (any, error) {
	h, ok := handlers[command]
	if !ok {
		return nil, graymoonerr.New(graymoonerr.KindUnknownCommand, "unknown command %q", command)
	}
	return h(d, ctx, argsJSON)
}

func decode[T any](args json.RawMessage) (*T, error) {
	var v T
	if len(args) > 0 {
		if err := json.Unmarshal(args, &v); err != nil {
			return nil, graymoonerr.New(graymoonerr.KindInvalidArgs, "invalid args: %v", err)
		}
	}
	return &v, nil
}

func (d *Dispatcher) handleSyncRepository(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.SyncRepositoryRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	wasCloned := false
	if err := d.vcs.EnsureWorkspace(req.WorkspaceRoot); err != nil {
		return nil, err
	}
	if !d.vcs.RepositoryExists(repoDir) {
		if err := d.vcs.Clone(ctx, req.WorkspaceRoot, req.RepositoryName, req.CloneURL, req.Token); err != nil {
			return nil, err
		}
		wasCloned = true
	}
	if err := d.vcs.Fetch(ctx, repoDir); err != nil {
		return nil, err
	}
	branch, err := d.vcs.CurrentBranch(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	version, err := d.vcs.GitVersion(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	ahead, behind, _, err := d.vcs.AheadBehind(ctx, repoDir, branch)
	if err != nil {
		return nil, err
	}
	projects, err := projectparser.Parse(repoDir)
	if err != nil {
		return nil, err
	}
	branches, err := d.vcs.ListBranches(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	local, remote := splitBranches(branches)

	return &rpc.SyncRepositoryResult{
		Version: version, Branch: branch, WasCloned: wasCloned,
		Projects: projects, Ahead: ahead, Behind: behind,
		LocalBranches: local, RemoteBranches: remote,
	}, nil
}

func splitBranches(all []rpc.BranchInfo) (local, remote []rpc.BranchInfo) {
	for _, b := range all {
		if b.IsRemote {
			remote = append(remote, b)
		} else {
			local = append(local, b)
		}
	}
	return
}

func (d *Dispatcher) handleRefreshRepositoryVersion(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.RefreshRepositoryVersionRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	if err := d.vcs.Fetch(ctx, repoDir); err != nil {
		return nil, err
	}
	branch, err := d.vcs.CurrentBranch(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	version, err := d.vcs.GitVersion(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	ahead, behind, hasUpstream, err := d.vcs.AheadBehind(ctx, repoDir, branch)
	if err != nil {
		return nil, err
	}
	branches, err := d.vcs.ListBranches(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	return &rpc.RefreshRepositoryVersionResult{
		Version: version, Branch: branch, Ahead: ahead, Behind: behind,
		HasUpstream: hasUpstream, Branches: branches,
	}, nil
}

func (d *Dispatcher) handleRefreshRepositoryProjects(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.RefreshRepositoryProjectsRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	projects, err := projectparser.Parse(repoDir)
	if err != nil {
		return nil, err
	}
	return &rpc.RefreshRepositoryProjectsResult{Projects: projects}, nil
}

func (d *Dispatcher) handleEnsureWorkspace(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.EnsureWorkspaceRequest](args)
	if err != nil {
		return nil, err
	}
	if err := d.vcs.EnsureWorkspace(req.WorkspaceRoot); err != nil {
		return nil, err
	}
	return &rpc.EnsureWorkspaceResult{}, nil
}

func (d *Dispatcher) handleGetWorkspaceRepositories(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.GetWorkspaceRepositoriesRequest](args)
	if err != nil {
		return nil, err
	}
	entries, err := filepath.Glob(filepath.Join(req.WorkspaceRoot, "*", ".git"))
	if err != nil {
		return nil, err
	}
	var names, origins []string
	for _, gitDir := range entries {
		repoDir := filepath.Dir(gitDir)
		names = append(names, filepath.Base(repoDir))
		originURL, _ := d.vcs.RemoteOriginURL(ctx, repoDir)
		origins = append(origins, originURL)
	}
	return &rpc.GetWorkspaceRepositoriesResult{RepoNames: names, OriginURLs: origins}, nil
}

func (d *Dispatcher) handleGetWorkspaceExists(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.GetWorkspaceExistsRequest](args)
	if err != nil {
		return nil, err
	}
	return &rpc.GetWorkspaceExistsResult{Exists: d.vcs.WorkspaceExists(req.WorkspaceRoot)}, nil
}

func (d *Dispatcher) handleGetRepositoryVersion(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.GetRepositoryVersionRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	if !d.vcs.RepositoryExists(repoDir) {
		return &rpc.GetRepositoryVersionResult{Exists: false}, nil
	}
	branch, err := d.vcs.CurrentBranch(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	version, err := d.vcs.GitVersion(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	return &rpc.GetRepositoryVersionResult{Exists: true, Version: version, Branch: branch}, nil
}

func (d *Dispatcher) handlePushRepository(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.PushRepositoryRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	if err := d.vcs.Push(ctx, repoDir, req.Branch, req.Token); err != nil {
		return &rpc.PushRepositoryResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &rpc.PushRepositoryResult{Success: true}, nil
}

func (d *Dispatcher) handleCommitSyncRepository(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.CommitSyncRepositoryRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	strategy, version, branch, err := d.vcs.CommitSync(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	return &rpc.CommitSyncRepositoryResult{Strategy: strategy, Version: version, Branch: branch}, nil
}

func (d *Dispatcher) handleSyncRepositoryDependencies(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.SyncRepositoryDependenciesRequest](args)
	if err != nil {
		return nil, err
	}
	n, err := d.vcs.RewriteDependencyVersions(req.WorkspaceRoot, req.RepositoryName, req.Updates)
	if err != nil {
		return nil, err
	}
	return &rpc.SyncRepositoryDependenciesResult{UpdatedCount: n}, nil
}

func (d *Dispatcher) handleCheckoutBranch(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.CheckoutBranchRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	if err := d.vcs.CheckoutBranch(ctx, repoDir, req.Branch); err != nil {
		return &rpc.BranchOpResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &rpc.BranchOpResult{Success: true}, nil
}

func (d *Dispatcher) handleCreateBranch(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.CreateBranchRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	if err := d.vcs.CreateBranch(ctx, repoDir, req.Branch, req.From); err != nil {
		return &rpc.BranchOpResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &rpc.BranchOpResult{Success: true}, nil
}

func (d *Dispatcher) handleSyncToDefaultBranch(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.SyncToDefaultBranchRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	if err := d.vcs.SyncToDefaultBranch(ctx, repoDir); err != nil {
		return &rpc.BranchOpResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &rpc.BranchOpResult{Success: true}, nil
}

func (d *Dispatcher) handleRefreshBranches(ctx context.Context, args json.RawMessage) (any, error) {
	req, err := decode[rpc.RefreshBranchesRequest](args)
	if err != nil {
		return nil, err
	}
	repoDir := filepath.Join(req.WorkspaceRoot, req.RepositoryName)
	branches, err := d.vcs.ListBranches(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	return &rpc.RefreshBranchesResult{Branches: branches}, nil
}
