// Package jobqueue implements the Agent's bounded multi-producer,
// multi-consumer Job Queue (spec C3), grounded on the teacher's
// ExecutionQueueService (internal/services/execution_queue.go) but with the
// spec's required backpressure semantics: a Go buffered channel of fixed
// capacity blocks the producer when full instead of rejecting the job, so
// Enqueue never drops work the way the teacher's QueueExecution did with
// its select+default "queue is full" error.
package jobqueue

import (
	"context"
	"fmt"

	"graymoon/pkg/models"
)

// Queue is a bounded FIFO of JobEnvelope. Capacity = max(2*maxConcurrent, 64)
// per spec §4.1.
type Queue struct {
	ch chan models.JobEnvelope
}

// Capacity computes the queue capacity for a given worker count.
func Capacity(maxConcurrentCommands int) int {
	c := 2 * maxConcurrentCommands
	if c < 64 {
		return 64
	}
	return c
}

// New builds a Queue sized for maxConcurrentCommands workers.
func New(maxConcurrentCommands int) *Queue {
	return &Queue{ch: make(chan models.JobEnvelope, Capacity(maxConcurrentCommands))}
}

// Enqueue blocks until the job is admitted, the context is cancelled, or the
// queue is closed (in which case it panics the same way a closed-channel
// send does — callers must not enqueue after Close).
func (q *Queue) Enqueue(ctx context.Context, job models.JobEnvelope) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue cancelled: %w", ctx.Err())
	}
}

// Dequeue is read by workers; ok is false once the queue is closed and drained.
func (q *Queue) Dequeue() (models.JobEnvelope, bool) {
	job, ok := <-q.ch
	return job, ok
}

// Chan exposes the underlying channel for select-based consumers (workers
// select on it alongside a shutdown signal).
func (q *Queue) Chan() <-chan models.JobEnvelope { return q.ch }

// Close terminates all readers cleanly once drained. Must be called at most once.
func (q *Queue) Close() { close(q.ch) }

// Depth reports the number of envelopes currently buffered, used for
// observability (spec §12 supplemented features).
func (q *Queue) Depth() int { return len(q.ch) }
