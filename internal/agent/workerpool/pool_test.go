package workerpool

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/internal/agent/jobqueue"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

type fakeDispatcher struct {
	result any
	err    error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, command string, argsJSON json.RawMessage) (any, error) {
	return f.result, f.err
}

type fakeNotify struct {
	mu    sync.Mutex
	count int
}

func (f *fakeNotify) Handle(ctx context.Context, job *models.NotifyJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
}

func (f *fakeNotify) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type fakeResponseSender struct {
	mu        sync.Mutex
	responses []rpc.ResponseCommand
}

func (f *fakeResponseSender) SendResponse(ctx context.Context, resp rpc.ResponseCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeResponseSender) Responses() []rpc.ResponseCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rpc.ResponseCommand, len(f.responses))
	copy(out, f.responses)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPool_ProcessesCommandJobAndSendsResponse(t *testing.T) {
	queue := jobqueue.New(1)
	dispatcher := &fakeDispatcher{result: map[string]string{"ok": "yes"}}
	notify := &fakeNotify{}
	sender := &fakeResponseSender{}

	pool := New(queue, dispatcher, notify, sender, 2)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, queue.Enqueue(context.Background(), models.NewCommandEnvelope("req-1", "EnsureWorkspace", nil)))

	waitFor(t, time.Second, func() bool { return len(sender.Responses()) == 1 })
	resp := sender.Responses()[0]
	assert.Equal(t, "req-1", resp.RequestID)
	assert.True(t, resp.Success)
}

func TestPool_CommandFailureProducesErrorResponse(t *testing.T) {
	queue := jobqueue.New(1)
	dispatcher := &fakeDispatcher{err: assert.AnError}
	notify := &fakeNotify{}
	sender := &fakeResponseSender{}

	pool := New(queue, dispatcher, notify, sender, 1)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, queue.Enqueue(context.Background(), models.NewCommandEnvelope("req-2", "EnsureWorkspace", nil)))

	waitFor(t, time.Second, func() bool { return len(sender.Responses()) == 1 })
	resp := sender.Responses()[0]
	assert.Equal(t, "req-2", resp.RequestID)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestPool_ProcessesNotifyJobViaNotifyHandler(t *testing.T) {
	queue := jobqueue.New(1)
	dispatcher := &fakeDispatcher{}
	notify := &fakeNotify{}
	sender := &fakeResponseSender{}

	pool := New(queue, dispatcher, notify, sender, 1)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, queue.Enqueue(context.Background(), models.NewNotifyEnvelope(1, 2, "/repo")))

	waitFor(t, time.Second, func() bool { return notify.Count() == 1 })
	assert.Empty(t, sender.Responses(), "notify jobs never produce a ResponseCommand")
}

func TestNew_DefaultsWorkerCountWhenNonPositive(t *testing.T) {
	queue := jobqueue.New(1)
	pool := New(queue, &fakeDispatcher{}, &fakeNotify{}, &fakeResponseSender{}, 0)
	assert.Equal(t, 8, pool.numWorkers)
}

func TestStop_WaitsForInFlightWorkersToDrain(t *testing.T) {
	queue := jobqueue.New(1)
	notify := &fakeNotify{}
	pool := New(queue, &fakeDispatcher{}, notify, &fakeResponseSender{}, 2)
	pool.Start()

	require.NoError(t, queue.Enqueue(context.Background(), models.NewNotifyEnvelope(1, 1, "/repo")))
	waitFor(t, time.Second, func() bool { return notify.Count() == 1 })

	pool.Stop()
}
