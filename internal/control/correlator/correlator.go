// Package correlator is the Response Correlator (spec C10): a registry of
// pending request ids to completion handles. Each id is completed at most
// once, by exactly one of {response delivered, cancelled, agent-disconnected
// failure}.
package correlator

import (
	"context"
	"encoding/json"
	"sync"

	"graymoon/internal/graymoonerr"
)

// Result is what a waiter receives: either Data+Success or an Error.
type Result struct {
	Success bool
	Data    json.RawMessage
	Error   string
}

type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan Result
}

func New() *Correlator {
	return &Correlator{pending: make(map[string]chan Result)}
}

// Register allocates a completion handle for requestID. The caller must
// eventually call Await (which unregisters on return) exactly once.
func (c *Correlator) Register(requestID string) <-chan Result {
	ch := make(chan Result, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	return ch
}

// unregister removes the handle without sending, used on cancellation so a
// late response is discarded (spec §4.7).
func (c *Correlator) unregister(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// Await blocks for the response, a cancellation, or a disconnect-triggered
// failure, whichever comes first. It always unregisters before returning.
func (c *Correlator) Await(ctx context.Context, requestID string, ch <-chan Result) (Result, error) {
	defer c.unregister(requestID)
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return Result{}, graymoonerr.New(graymoonerr.KindCancelled, "request %s cancelled", requestID)
	}
}

// Complete delivers a ResponseCommand to its waiter, if still registered.
// A response for an id nobody is waiting on (already cancelled, or
// duplicate) is silently dropped.
func (c *Correlator) Complete(requestID string, success bool, data json.RawMessage, errMsg string) {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	ch <- Result{Success: success, Data: data, Error: errMsg}
}

// FailAll completes every still-pending request with AgentDisconnected,
// invoked by the RPC Hub when the current agent connection drops.
func (c *Correlator) FailAll() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan Result)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- Result{Success: false, Error: graymoonerr.ErrAgentDisconnected.Error()}
	}
}

// PendingCount reports the number of in-flight requests (observability).
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
