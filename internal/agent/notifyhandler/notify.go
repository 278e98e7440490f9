// Package notifyhandler is the Notify Handler (spec C5): given a hook
// notification it runs version calc + fetch + ahead/behind and pushes a
// SyncCommand to the control side. Failures are logged, never propagated —
// notifies are fire-and-forget.
package notifyhandler

import (
	"context"

	"graymoon/internal/agent/vcsexec"
	"graymoon/internal/logging"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

// SyncSender is implemented by the RPC Link: it pushes a SyncCommand over
// the persistent channel to the control side.
type SyncSender interface {
	SendSync(ctx context.Context, sc rpc.SyncCommand) error
}

type Handler struct {
	vcs    *vcsexec.Executor
	sender SyncSender
}

func New(vcs *vcsexec.Executor, sender SyncSender) *Handler {
	return &Handler{vcs: vcs, sender: sender}
}

// Handle runs the Notify job. Any sub-step failure is logged and swallowed.
func (h *Handler) Handle(ctx context.Context, job *models.NotifyJob) {
	if err := h.handle(ctx, job); err != nil {
		logging.Error("notify job failed for repo %d in workspace %d: %v", job.RepositoryID, job.WorkspaceID, err)
	}
}

func (h *Handler) handle(ctx context.Context, job *models.NotifyJob) error {
	if err := h.vcs.Fetch(ctx, job.RepositoryPath); err != nil {
		return err
	}
	branch, err := h.vcs.CurrentBranch(ctx, job.RepositoryPath)
	if err != nil {
		return err
	}
	version, err := h.vcs.GitVersion(ctx, job.RepositoryPath)
	if err != nil {
		return err
	}
	ahead, behind, hasUpstream, err := h.vcs.AheadBehind(ctx, job.RepositoryPath, branch)
	if err != nil {
		return err
	}

	return h.sender.SendSync(ctx, rpc.SyncCommand{
		WorkspaceID:  job.WorkspaceID,
		RepositoryID: job.RepositoryID,
		Version:      version,
		Branch:       branch,
		Outgoing:     &ahead,
		Incoming:     &behind,
		HasUpstream:  &hasUpstream,
	})
}
