package correlator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/internal/graymoonerr"
)

func TestAwait_ReceivesCompletedResponse(t *testing.T) {
	c := New()
	ch := c.Register("req-1")

	c.Complete("req-1", true, json.RawMessage(`{"ok":true}`), "")

	result, err := c.Await(context.Background(), "req-1", ch)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.JSONEq(t, `{"ok":true}`, string(result.Data))
	assert.Equal(t, 0, c.PendingCount())
}

func TestAwait_CancelledContextReturnsCancelledKind(t *testing.T) {
	c := New()
	ch := c.Register("req-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Await(ctx, "req-1", ch)
	require.Error(t, err)
	assert.Equal(t, graymoonerr.KindCancelled, graymoonerr.Classify(err))
	assert.Equal(t, 0, c.PendingCount(), "Await must unregister even on cancellation")
}

func TestComplete_DuplicateOrUnknownRequestIsDropped(t *testing.T) {
	c := New()
	// No panic, no block: completing an id nobody registered is a no-op.
	assert.NotPanics(t, func() {
		c.Complete("never-registered", true, nil, "")
	})
}

func TestComplete_LateResponseAfterCancelIsDiscarded(t *testing.T) {
	c := New()
	ch := c.Register("req-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Await(ctx, "req-1", ch)
	require.Error(t, err)

	// The response arrives after Await already unregistered and returned;
	// Complete must not block or panic trying to deliver it.
	done := make(chan struct{})
	go func() {
		c.Complete("req-1", true, nil, "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Complete blocked delivering to an unregistered request")
	}
}

func TestFailAll_CompletesEveryPendingWithAgentDisconnected(t *testing.T) {
	c := New()
	ch1 := c.Register("req-1")
	ch2 := c.Register("req-2")
	assert.Equal(t, 2, c.PendingCount())

	c.FailAll()

	r1 := <-ch1
	r2 := <-ch2
	assert.False(t, r1.Success)
	assert.Equal(t, graymoonerr.ErrAgentDisconnected.Error(), r1.Error)
	assert.False(t, r2.Success)
	assert.Equal(t, 0, c.PendingCount())
}

func TestPendingCount_TracksRegistrations(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.PendingCount())
	c.Register("req-1")
	assert.Equal(t, 1, c.PendingCount())
	c.Complete("req-1", true, nil, "")
	assert.Equal(t, 0, c.PendingCount())
}
