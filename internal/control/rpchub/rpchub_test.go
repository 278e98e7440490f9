package rpchub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/internal/graymoonerr"
	"graymoon/pkg/rpc"
)

func TestIsAgentConnected_FalseUntilAdopted(t *testing.T) {
	h := New(nil)
	assert.False(t, h.IsAgentConnected())

	h.adopt("conn-1", &websocket.Conn{})
	assert.True(t, h.IsAgentConnected())
}

func TestDrop_OnlyClearsIfStillCurrent(t *testing.T) {
	h := New(nil)
	h.adopt("conn-1", &websocket.Conn{})
	h.adopt("conn-2", &websocket.Conn{}) // supersedes conn-1

	h.drop("conn-1") // stale, must not clear the current connection
	assert.True(t, h.IsAgentConnected())

	h.drop("conn-2")
	assert.False(t, h.IsAgentConnected())
}

func TestAdopt_SupersedingConnectionFailsAllPending(t *testing.T) {
	h := New(nil)
	h.adopt("conn-1", &websocket.Conn{})
	ch := h.correlator.Register("req-1")

	h.adopt("conn-2", &websocket.Conn{})

	result := <-ch
	assert.False(t, result.Success)
	assert.Equal(t, graymoonerr.ErrAgentDisconnected.Error(), result.Error)
}

func TestHandleEnvelope_ResponseCommandCompletesCorrelator(t *testing.T) {
	h := New(nil)
	ch := h.correlator.Register("req-1")

	h.handleEnvelope(rpc.Envelope{
		Type:            rpc.TypeResponseCommand,
		ResponseCommand: &rpc.ResponseCommand{RequestID: "req-1", Success: true, Data: json.RawMessage(`{"a":1}`)},
	})

	result := <-ch
	assert.True(t, result.Success)
	assert.JSONEq(t, `{"a":1}`, string(result.Data))
}

func TestHandleEnvelope_SyncCommandInvokesHandler(t *testing.T) {
	var received rpc.SyncCommand
	called := false
	h := New(func(sc rpc.SyncCommand) {
		called = true
		received = sc
	})

	h.handleEnvelope(rpc.Envelope{
		Type:        rpc.TypeSyncCommand,
		SyncCommand: &rpc.SyncCommand{WorkspaceID: 1, RepositoryID: 2, Version: "1.0.0+0", Branch: "main"},
	})

	require.True(t, called)
	assert.Equal(t, int64(1), received.WorkspaceID)
	assert.Equal(t, int64(2), received.RepositoryID)
}

func TestHandleEnvelope_ReportSemVerUpdatesAgentSemVer(t *testing.T) {
	h := New(nil)
	assert.Empty(t, h.AgentSemVer())

	h.handleEnvelope(rpc.Envelope{
		Type:         rpc.TypeReportSemVer,
		ReportSemVer: &rpc.ReportSemVer{SemVer: "1.2.3"},
	})

	assert.Equal(t, "1.2.3", h.AgentSemVer())
}

func TestSendCommand_NoAgentConnectedFailsFast(t *testing.T) {
	h := New(nil)
	_, err := h.SendCommand(context.Background(), "EnsureWorkspace", map[string]string{"workspaceRoot": "/w"})
	require.Error(t, err)
	assert.Equal(t, graymoonerr.KindAgentDisconnected, graymoonerr.Classify(err))
}

func TestPendingRequestCount_ReflectsCorrelatorDepth(t *testing.T) {
	h := New(nil)
	assert.Equal(t, 0, h.PendingRequestCount())
	h.correlator.Register("req-1")
	assert.Equal(t, 1, h.PendingRequestCount())
}
