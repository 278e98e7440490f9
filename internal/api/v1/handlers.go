// Package v1 implements the Control Service's core REST subset (spec §6):
// sync enqueue, commit-sync/push/branch facades over the Agent Bridge, and
// a realtime websocket for WorkspaceSynced fan-out.
package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"graymoon/internal/control/agentbridge"
	"graymoon/internal/control/broadcast"
	"graymoon/internal/control/depsolver"
	"graymoon/internal/control/pushscheduler"
	"graymoon/internal/control/syncqueue"
	"graymoon/internal/db/repositories"
	"graymoon/internal/graymoonerr"
	"graymoon/internal/logging"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

var realtimeUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handlers struct {
	repos     *repositories.Repositories
	bridge    *agentbridge.Bridge
	syncQueue *syncqueue.Queue
	scheduler *pushscheduler.Scheduler
	solver    *depsolver.Solver
	broadcast *broadcast.Channel
}

func New(repos *repositories.Repositories, bridge *agentbridge.Bridge, sq *syncqueue.Queue, scheduler *pushscheduler.Scheduler, solver *depsolver.Solver, b *broadcast.Channel) *Handlers {
	return &Handlers{repos: repos, bridge: bridge, syncQueue: sq, scheduler: scheduler, solver: solver, broadcast: b}
}

func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/sync", h.handleSync)
	router.GET("/api/sync/queue", h.handleSyncQueueStatus)
	router.POST("/api/commitsync", h.handleCommitSync)
	router.POST("/api/pullpush", h.handlePullPush)
	router.POST("/api/branches/checkout", h.handleCheckoutBranch)
	router.POST("/api/branches/create", h.handleCreateBranch)
	router.POST("/api/branches/sync-default", h.handleSyncToDefaultBranch)
	router.POST("/api/branches/refresh", h.handleRefreshBranches)
	router.POST("/api/projects/refresh", h.handleRefreshProjects)
	router.GET("/ws/workspaces/:workspaceId/sync", h.handleWorkspaceSyncStream)
}

type repoWorkspaceBody struct {
	WorkspaceID  int64 `json:"workspaceId" binding:"required"`
	RepositoryID int64 `json:"repositoryId" binding:"required"`
}

// handleSync implements POST /api/sync: enqueue (repositoryId, workspaceId)
// to the Sync Queue; 404 when repo isn't a workspace member, otherwise 202
// with the Enqueue status (Accepted or DroppedDuplicate). The queue is
// unbounded and Enqueue has no refusal path, so this handler never answers
// 503.
func (h *Handlers) handleSync(c *gin.Context) {
	var body repoWorkspaceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.repos.Links.GetByWorkspaceAndRepo(c.Request.Context(), body.WorkspaceID, body.RepositoryID); err != nil {
		if graymoonerr.Classify(err) == graymoonerr.KindNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not in workspace"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := h.syncQueue.Enqueue(syncqueue.Request{WorkspaceID: body.WorkspaceID, RepositoryID: body.RepositoryID, Trigger: "api"})
	c.JSON(http.StatusAccepted, gin.H{"status": status})
}

func (h *Handlers) handleSyncQueueStatus(c *gin.Context) {
	depth := h.syncQueue.Depth()
	c.JSON(http.StatusOK, gin.H{
		"queueDepth": depth,
		"message":    "sync queue operating normally",
	})
}

type workspaceRepoNameBody struct {
	WorkspaceID    int64  `json:"workspaceId" binding:"required"`
	RepositoryID   int64  `json:"repositoryId" binding:"required"`
	WorkspaceName  string `json:"workspaceName" binding:"required"`
	WorkspaceRoot  string `json:"workspaceRoot"`
	RepositoryName string `json:"repositoryName" binding:"required"`
}

// handleCommitSync implements POST /api/commitsync: a thin facade over the
// Agent Bridge's CommitSyncRepository command, persisting the outcome.
func (h *Handlers) handleCommitSync(c *gin.Context) {
	var body workspaceRepoNameBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.repos.Links.GetByWorkspaceAndRepo(c.Request.Context(), body.WorkspaceID, body.RepositoryID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "repository not in workspace"})
		return
	}

	result, err := h.bridge.CommitSyncRepository(c.Request.Context(), rpc.CommitSyncRepositoryRequest{
		WorkspaceName: body.WorkspaceName, WorkspaceRoot: body.WorkspaceRoot, RepositoryName: body.RepositoryName,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	if err := h.repos.Links.UpdateSyncResult(c.Request.Context(), link.ID, result.Version, result.Branch, 0, 0, true, nil, models.SyncStatusInSync, nil); err != nil {
		logging.Warn("commitsync: persist result for link %d: %v", link.ID, err)
	}
	c.JSON(http.StatusOK, result)
}

// handlePullPush implements POST /api/pullpush: runs the Push Scheduler for
// a workspace, optionally scoped to a subset of repositories.
func (h *Handlers) handlePullPush(c *gin.Context) {
	var body struct {
		WorkspaceID int64   `json:"workspaceId" binding:"required"`
		RepoIDs     []int64 `json:"repoIds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var repoErrors []gin.H
	result, err := h.scheduler.Push(c.Request.Context(), pushscheduler.Request{
		WorkspaceID: body.WorkspaceID,
		RepoIDs:     body.RepoIDs,
		OnRepoError: func(repoID int64, message string) {
			repoErrors = append(repoErrors, gin.H{"repositoryId": repoID, "error": message})
		},
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "repoErrors": repoErrors})
}

type branchOpBody struct {
	WorkspaceID    int64  `json:"workspaceId" binding:"required"`
	RepositoryID   int64  `json:"repositoryId" binding:"required"`
	WorkspaceRoot  string `json:"workspaceRoot"`
	RepositoryName string `json:"repositoryName" binding:"required"`
	Branch         string `json:"branch"`
	From           string `json:"from"`
}

func (h *Handlers) handleCheckoutBranch(c *gin.Context) {
	var body branchOpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.runBranchOp(c, body, rpc.CmdCheckoutBranch, rpc.CheckoutBranchRequest{
		WorkspaceRoot: body.WorkspaceRoot, RepositoryName: body.RepositoryName, Branch: body.Branch,
	})
}

func (h *Handlers) handleCreateBranch(c *gin.Context) {
	var body branchOpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.runBranchOp(c, body, rpc.CmdCreateBranch, rpc.CreateBranchRequest{
		WorkspaceRoot: body.WorkspaceRoot, RepositoryName: body.RepositoryName, Branch: body.Branch, From: body.From,
	})
}

func (h *Handlers) handleSyncToDefaultBranch(c *gin.Context) {
	var body branchOpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.runBranchOp(c, body, rpc.CmdSyncToDefaultBranch, rpc.SyncToDefaultBranchRequest{
		WorkspaceRoot: body.WorkspaceRoot, RepositoryName: body.RepositoryName,
	})
}

func (h *Handlers) runBranchOp(c *gin.Context, body branchOpBody, command string, args any) {
	link, err := h.repos.Links.GetByWorkspaceAndRepo(c.Request.Context(), body.WorkspaceID, body.RepositoryID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "repository not in workspace"})
		return
	}

	result, err := h.bridge.BranchOp(c.Request.Context(), command, args)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if result.Success {
		h.persistBranches(c, link.ID, result.Branches)
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) handleRefreshBranches(c *gin.Context) {
	var body branchOpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	link, err := h.repos.Links.GetByWorkspaceAndRepo(c.Request.Context(), body.WorkspaceID, body.RepositoryID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "repository not in workspace"})
		return
	}

	result, err := h.bridge.RefreshBranches(c.Request.Context(), rpc.RefreshBranchesRequest{
		WorkspaceRoot: body.WorkspaceRoot, RepositoryName: body.RepositoryName,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	h.persistBranches(c, link.ID, result.Branches)
	c.JSON(http.StatusOK, result)
}

// handleRefreshProjects implements POST /api/projects/refresh: the control
// side of the RefreshRepositoryProjects command (spec §4.3), re-parsing a
// repository's project files and feeding the result back into the
// Dependency Solver.
func (h *Handlers) handleRefreshProjects(c *gin.Context) {
	var body workspaceRepoNameBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.repos.Links.GetByWorkspaceAndRepo(c.Request.Context(), body.WorkspaceID, body.RepositoryID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "repository not in workspace"})
		return
	}

	result, err := h.bridge.RefreshRepositoryProjects(c.Request.Context(), rpc.RefreshRepositoryProjectsRequest{
		WorkspaceRoot: body.WorkspaceRoot, RepositoryName: body.RepositoryName,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	h.persistProjects(c, body.WorkspaceID, body.RepositoryID, result.Projects)
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) persistProjects(c *gin.Context, workspaceID, repositoryID int64, projects []rpc.ProjectInfo) {
	if len(projects) == 0 {
		return
	}
	if err := depsolver.PersistProjects(c.Request.Context(), h.repos, workspaceID, repositoryID, projects); err != nil {
		logging.Warn("persist projects for workspace %d repo %d: %v", workspaceID, repositoryID, err)
		return
	}
	if err := h.solver.Solve(c.Request.Context(), workspaceID); err != nil {
		logging.Warn("recompute dependency levels for workspace %d: %v", workspaceID, err)
	}
}

func (h *Handlers) persistBranches(c *gin.Context, linkID int64, branches []rpc.BranchInfo) {
	if len(branches) == 0 {
		return
	}
	rows := make([]models.RepositoryBranch, 0, len(branches))
	for _, b := range branches {
		rows = append(rows, models.RepositoryBranch{LinkID: linkID, Name: b.Name, IsRemote: b.IsRemote, IsDefault: b.Default})
	}
	if err := h.repos.Branches.ReplaceForLink(c.Request.Context(), linkID, rows); err != nil {
		logging.Warn("persist branches for link %d: %v", linkID, err)
	}
}

// handleWorkspaceSyncStream implements the realtime surface from spec §6: a
// websocket that forwards WorkspaceSynced signals, re-read by the client
// from the Store on each frame.
func (h *Handlers) handleWorkspaceSyncStream(c *gin.Context) {
	workspaceID, err := parseWorkspaceID(c.Param("workspaceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace id"})
		return
	}

	conn, err := realtimeUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe, err := h.broadcast.Subscribe(workspaceID)
	if err != nil {
		logging.Warn("subscribe workspace %d sync stream: %v", workspaceID, err)
		return
	}
	defer unsubscribe()

	for range events {
		if err := conn.WriteJSON(gin.H{"workspaceId": workspaceID, "event": "WorkspaceSynced"}); err != nil {
			return
		}
	}
}

func parseWorkspaceID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func statusFor(err error) int {
	switch graymoonerr.Classify(err) {
	case graymoonerr.KindAgentDisconnected, graymoonerr.KindRegistryUnavailable:
		return http.StatusServiceUnavailable
	case graymoonerr.KindNotFound:
		return http.StatusNotFound
	case graymoonerr.KindInvalidArgs:
		return http.StatusBadRequest
	case graymoonerr.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}
