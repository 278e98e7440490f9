package notifyhandler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"graymoon/internal/agent/vcsexec"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

type fakeSyncSender struct {
	called bool
	sent   rpc.SyncCommand
}

func (f *fakeSyncSender) SendSync(ctx context.Context, sc rpc.SyncCommand) error {
	f.called = true
	f.sent = sc
	return nil
}

func TestHandle_SwallowsFetchFailureAndNeverSends(t *testing.T) {
	sender := &fakeSyncSender{}
	h := New(vcsexec.New(), sender)

	job := &models.NotifyJob{RepositoryID: 1, WorkspaceID: 2, RepositoryPath: "/nonexistent/repo/path"}

	// Handle must never panic or propagate: a failed git fetch against a
	// path that doesn't exist is logged and swallowed, not surfaced.
	assert.NotPanics(t, func() { h.Handle(context.Background(), job) })
	assert.False(t, sender.called, "SendSync must not run when the VCS step fails")
}
