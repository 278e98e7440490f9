package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/pkg/models"
)

func TestCapacity_FloorsAt64(t *testing.T) {
	assert.Equal(t, 64, Capacity(1))
	assert.Equal(t, 64, Capacity(10))
}

func TestCapacity_ScalesWithWorkerCount(t *testing.T) {
	assert.Equal(t, 100, Capacity(50))
}

func TestEnqueueDequeue_PreservesFIFOOrder(t *testing.T) {
	q := New(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, models.NewNotifyEnvelope(int64(i), 1, "/repo")))
	}
	assert.Equal(t, 3, q.Depth())

	for i := 0; i < 3; i++ {
		job, ok := q.Dequeue()
		require.True(t, ok)
		require.NotNil(t, job.Notify)
		assert.Equal(t, int64(i), job.Notify.RepositoryID)
	}
}

func TestEnqueue_CancelledContextReturnsError(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, models.NewNotifyEnvelope(1, 1, "/repo")))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Enqueue(cancelled, models.NewNotifyEnvelope(2, 1, "/repo"))
	assert.Error(t, err)
}

func TestClose_DrainsThenSignalsClosed(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, models.NewNotifyEnvelope(1, 1, "/repo")))
	q.Close()

	job, ok := q.Dequeue()
	assert.True(t, ok, "buffered job should still be readable after Close")
	assert.Equal(t, int64(1), job.Notify.RepositoryID)

	_, ok = q.Dequeue()
	assert.False(t, ok, "Dequeue must report closed once drained")
}

func TestChan_UsableInSelect(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Enqueue(context.Background(), models.NewCommandEnvelope("req-1", "CloneRepository", nil)))

	select {
	case job := <-q.Chan():
		require.NotNil(t, job.Command)
		assert.Equal(t, "req-1", job.Command.RequestID)
	case <-time.After(time.Second):
		t.Fatal("expected a buffered job to be immediately readable")
	}
}
