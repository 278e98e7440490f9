package rpclink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/internal/agent/jobqueue"
	"graymoon/pkg/rpc"
)

func TestBackoffDelay_StaysWithinJitterBandAndBase(t *testing.T) {
	d := backoffDelay(0)
	assert.GreaterOrEqual(t, d, time.Duration(float64(backoffBase)*0.8))
	assert.LessOrEqual(t, d, time.Duration(float64(backoffBase)*1.2))
}

func TestBackoffDelay_CapsAtBackoffCap(t *testing.T) {
	d := backoffDelay(20) // 1s << 20 overflows well past the cap
	assert.LessOrEqual(t, d, time.Duration(float64(backoffCap)*1.2))
	assert.GreaterOrEqual(t, d, time.Duration(float64(backoffCap)*0.8))
}

func TestBackoffDelay_GrowsWithAttempt(t *testing.T) {
	// Attempt 1 is at most 2s*1.2 = 2.4s and attempt 3 is at least
	// 8s*0.8 = 6.4s, so jitter cannot make the two overlap.
	assert.Less(t, backoffDelay(1), backoffDelay(3))
}

func TestIsConnected_DefaultsFalse(t *testing.T) {
	l := New("ws://example.invalid/agent/ws", "1.0.0", jobqueue.New(1))
	assert.False(t, l.IsConnected())
}

func TestSetConnected_TogglesIsConnected(t *testing.T) {
	l := New("ws://example.invalid/agent/ws", "1.0.0", jobqueue.New(1))
	l.setConnected(true)
	assert.True(t, l.IsConnected())
	l.setConnected(false)
	assert.False(t, l.IsConnected())
}

func TestWrite_ReturnsErrorWhenNotConnected(t *testing.T) {
	l := New("ws://example.invalid/agent/ws", "1.0.0", jobqueue.New(1))
	err := l.SendReportSemVer(context.Background())
	assert.ErrorIs(t, err, websocket.ErrCloseSent)
}

func TestDispatch_EnqueuesRequestCommandEnvelope(t *testing.T) {
	queue := jobqueue.New(1)
	l := New("ws://example.invalid/agent/ws", "1.0.0", queue)

	env := rpc.Envelope{
		Type: rpc.TypeRequestCommand,
		RequestCommand: &rpc.RequestCommand{
			RequestID: "req-1",
			Command:   "EnsureWorkspace",
			Args:      json.RawMessage(`{}`),
		},
	}
	l.dispatch(context.Background(), env)

	job, ok := queue.Dequeue()
	require.True(t, ok)
	require.NotNil(t, job.Command)
	assert.Equal(t, "req-1", job.Command.RequestID)
	assert.Equal(t, "EnsureWorkspace", job.Command.Command)
}

func TestDispatch_IgnoresNonRequestCommandEnvelopes(t *testing.T) {
	queue := jobqueue.New(1)
	l := New("ws://example.invalid/agent/ws", "1.0.0", queue)

	l.dispatch(context.Background(), rpc.Envelope{Type: rpc.TypeResponseCommand})
	assert.Equal(t, 0, queue.Depth())
}
