package hooklistener

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graymoon/internal/agent/jobqueue"
)

func TestHandleNotify_EnqueuesJobAndReturnsAccepted(t *testing.T) {
	queue := jobqueue.New(1)
	l := New(queue, 0)

	body, err := json.Marshal(map[string]any{
		"repositoryId":   1,
		"workspaceId":    2,
		"repositoryPath": "/workspaces/w1/core",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, queue.Depth())
}

func TestHandleNotify_RejectsMissingFields(t *testing.T) {
	queue := jobqueue.New(1)
	l := New(queue, 0)

	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, queue.Depth())
}

func TestHandleNotify_RejectsWhileShuttingDown(t *testing.T) {
	queue := jobqueue.New(1)
	l := New(queue, 0)
	l.shuttingDown.Store(true)

	body, _ := json.Marshal(map[string]any{"repositoryId": 1, "workspaceId": 2, "repositoryPath": "/repo"})
	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, queue.Depth())
}

func TestHandleHealth_ReportsQueueDepth(t *testing.T) {
	queue := jobqueue.New(1)
	l := New(queue, 0)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, float64(0), out["queueDepth"])
}

func TestRun_ShutsDownOnContextCancel(t *testing.T) {
	queue := jobqueue.New(1)
	l := New(queue, 18080)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not shut down after context cancellation")
	}
}
