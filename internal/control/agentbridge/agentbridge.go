// Package agentbridge is the Agent Bridge (spec C11): a typed facade over
// the RPC Hub (C9) and Response Correlator (C10). All higher-level control
// services talk only to this package, never to the hub directly.
package agentbridge

import (
	"context"
	"encoding/json"

	"graymoon/internal/graymoonerr"
	"graymoon/pkg/rpc"
)

// Hub is the subset of rpchub.Hub the bridge depends on.
type Hub interface {
	IsAgentConnected() bool
	SendCommand(ctx context.Context, command string, args any) (json.RawMessage, error)
}

// Response is the generic typed result of SendCommand.
type Response struct {
	Success bool
	Data    json.RawMessage
	Error   string
}

type Bridge struct {
	hub Hub
}

func New(hub Hub) *Bridge {
	return &Bridge{hub: hub}
}

// IsAgentConnected reflects hub state.
func (b *Bridge) IsAgentConnected() bool { return b.hub.IsAgentConnected() }

// SendCommand sends command+args and awaits the typed response. On missing
// connection it returns success=false without attempting to send, per
// spec §4.8.
func (b *Bridge) SendCommand(ctx context.Context, command string, args any) Response {
	if !b.hub.IsAgentConnected() {
		return Response{Success: false, Error: graymoonerr.ErrAgentDisconnected.Error()}
	}
	data, err := b.hub.SendCommand(ctx, command, args)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	return Response{Success: true, Data: data}
}

// SyncRepository is a typed wrapper over SendCommand for the SyncRepository command.
func (b *Bridge) SyncRepository(ctx context.Context, req rpc.SyncRepositoryRequest) (*rpc.SyncRepositoryResult, error) {
	resp := b.SendCommand(ctx, rpc.CmdSyncRepository, req)
	if !resp.Success {
		return nil, graymoonerr.New(graymoonerr.KindVcsFailure, "%s", resp.Error)
	}
	var out rpc.SyncRepositoryResult
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshRepositoryVersion is a typed wrapper for RefreshRepositoryVersion.
func (b *Bridge) RefreshRepositoryVersion(ctx context.Context, req rpc.RefreshRepositoryVersionRequest) (*rpc.RefreshRepositoryVersionResult, error) {
	resp := b.SendCommand(ctx, rpc.CmdRefreshRepositoryVersion, req)
	if !resp.Success {
		return nil, graymoonerr.New(graymoonerr.KindVcsFailure, "%s", resp.Error)
	}
	var out rpc.RefreshRepositoryVersionResult
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshRepositoryProjects is a typed wrapper for RefreshRepositoryProjects.
func (b *Bridge) RefreshRepositoryProjects(ctx context.Context, req rpc.RefreshRepositoryProjectsRequest) (*rpc.RefreshRepositoryProjectsResult, error) {
	resp := b.SendCommand(ctx, rpc.CmdRefreshRepositoryProjects, req)
	if !resp.Success {
		return nil, graymoonerr.New(graymoonerr.KindVcsFailure, "%s", resp.Error)
	}
	var out rpc.RefreshRepositoryProjectsResult
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PushRepository is a typed wrapper for PushRepository.
func (b *Bridge) PushRepository(ctx context.Context, req rpc.PushRepositoryRequest) (*rpc.PushRepositoryResult, error) {
	resp := b.SendCommand(ctx, rpc.CmdPushRepository, req)
	if !resp.Success {
		return &rpc.PushRepositoryResult{Success: false, ErrorMessage: resp.Error}, nil
	}
	var out rpc.PushRepositoryResult
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CommitSyncRepository is a typed wrapper for CommitSyncRepository.
func (b *Bridge) CommitSyncRepository(ctx context.Context, req rpc.CommitSyncRepositoryRequest) (*rpc.CommitSyncRepositoryResult, error) {
	resp := b.SendCommand(ctx, rpc.CmdCommitSyncRepository, req)
	if !resp.Success {
		return nil, graymoonerr.New(graymoonerr.KindVcsFailure, "%s", resp.Error)
	}
	var out rpc.CommitSyncRepositoryResult
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BranchOp is a typed wrapper for the branch family of commands
// (CheckoutBranch/CreateBranch/SyncToDefaultBranch), all returning the same
// BranchOpResult shape.
func (b *Bridge) BranchOp(ctx context.Context, command string, args any) (*rpc.BranchOpResult, error) {
	resp := b.SendCommand(ctx, command, args)
	if !resp.Success {
		return &rpc.BranchOpResult{Success: false, ErrorMessage: resp.Error}, nil
	}
	var out rpc.BranchOpResult
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshBranches is a typed wrapper for RefreshBranches.
func (b *Bridge) RefreshBranches(ctx context.Context, req rpc.RefreshBranchesRequest) (*rpc.RefreshBranchesResult, error) {
	resp := b.SendCommand(ctx, rpc.CmdRefreshBranches, req)
	if !resp.Success {
		return nil, graymoonerr.New(graymoonerr.KindVcsFailure, "%s", resp.Error)
	}
	var out rpc.RefreshBranchesResult
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
