package agentbridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/internal/graymoonerr"
	"graymoon/pkg/rpc"
)

type fakeHub struct {
	connected bool
	data      json.RawMessage
	err       error
	lastCmd   string
	lastArgs  any
}

func (f *fakeHub) IsAgentConnected() bool { return f.connected }

func (f *fakeHub) SendCommand(ctx context.Context, command string, args any) (json.RawMessage, error) {
	f.lastCmd = command
	f.lastArgs = args
	return f.data, f.err
}

func TestSendCommand_NoAgentSkipsHubCall(t *testing.T) {
	hub := &fakeHub{connected: false}
	b := New(hub)

	resp := b.SendCommand(context.Background(), "EnsureWorkspace", nil)
	assert.False(t, resp.Success)
	assert.Empty(t, hub.lastCmd, "hub.SendCommand must not be invoked when no agent is connected")
}

func TestSendCommand_DelegatesWhenConnected(t *testing.T) {
	hub := &fakeHub{connected: true, data: json.RawMessage(`{"ok":true}`)}
	b := New(hub)

	resp := b.SendCommand(context.Background(), "EnsureWorkspace", map[string]string{"workspaceRoot": "/w"})
	assert.True(t, resp.Success)
	assert.Equal(t, "EnsureWorkspace", hub.lastCmd)
}

func TestSyncRepository_UnmarshalsTypedResult(t *testing.T) {
	data, _ := json.Marshal(rpc.SyncRepositoryResult{Version: "1.0.0+0", Branch: "main"})
	hub := &fakeHub{connected: true, data: data}
	b := New(hub)

	out, err := b.SyncRepository(context.Background(), rpc.SyncRepositoryRequest{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0+0", out.Version)
	assert.Equal(t, "main", out.Branch)
}

func TestSyncRepository_ErrorOnAgentDisconnected(t *testing.T) {
	hub := &fakeHub{connected: false}
	b := New(hub)

	out, err := b.SyncRepository(context.Background(), rpc.SyncRepositoryRequest{})
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Equal(t, graymoonerr.KindVcsFailure, graymoonerr.Classify(err))
}

func TestPushRepository_FailureReturnsResultNotError(t *testing.T) {
	hub := &fakeHub{connected: false}
	b := New(hub)

	out, err := b.PushRepository(context.Background(), rpc.PushRepositoryRequest{})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.ErrorMessage)
}

func TestBranchOp_FailureReturnsResultNotError(t *testing.T) {
	hub := &fakeHub{connected: false}
	b := New(hub)

	out, err := b.BranchOp(context.Background(), rpc.CmdCheckoutBranch, rpc.CheckoutBranchRequest{})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.False(t, out.Success)
}

func TestBranchOp_SuccessUnmarshalsResult(t *testing.T) {
	data, _ := json.Marshal(rpc.BranchOpResult{Success: true})
	hub := &fakeHub{connected: true, data: data}
	b := New(hub)

	out, err := b.BranchOp(context.Background(), rpc.CmdCheckoutBranch, rpc.CheckoutBranchRequest{Branch: "main"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, rpc.CmdCheckoutBranch, hub.lastCmd)
}

func TestIsAgentConnected_ReflectsHub(t *testing.T) {
	hub := &fakeHub{connected: true}
	b := New(hub)
	assert.True(t, b.IsAgentConnected())
}
