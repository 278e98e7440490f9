// Package syncqueue is the Sync Queue (spec C12): a de-duplicated
// background pipeline that refreshes one repository's state via the Agent
// Bridge and persists the result. Grounded on the teacher's
// ExecutionQueueService worker-pool shape (internal/services/execution_queue.go)
// and DeclarativeSync's operation-result bookkeeping
// (internal/services/declarative_sync.go), reworked around an unbounded,
// de-duplicating FIFO instead of a fixed-capacity channel, per spec §4.9.
package syncqueue

import (
	"context"
	"sync"

	"graymoon/internal/control/agentbridge"
	"graymoon/internal/control/depsolver"
	"graymoon/internal/db/repositories"
	"graymoon/internal/graymoonerr"
	"graymoon/internal/logging"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

// EnqueueStatus distinguishes a freshly admitted request from one dropped
// because its key is already in-flight or queued.
type EnqueueStatus string

const (
	StatusAccepted         EnqueueStatus = "Accepted"
	StatusDroppedDuplicate EnqueueStatus = "DroppedDuplicate"
)

// Request is one (repository, workspace) sync ask, from a hook or the UI.
type Request struct {
	WorkspaceID  int64
	RepositoryID int64
	Trigger      string
}

type key struct {
	workspaceID, repositoryID int64
}

// Broadcaster is implemented by internal/control/broadcast.Channel.
type Broadcaster interface {
	Publish(workspaceID int64) error
}

// Queue is the de-duplicated, bounded-worker Sync Queue.
type Queue struct {
	repos       *repositories.Repositories
	bridge      *agentbridge.Bridge
	solver      *depsolver.Solver
	broadcaster Broadcaster
	dedupe      bool
	numWorkers  int

	mu       sync.Mutex
	cond     *sync.Cond
	items    []Request
	inFlight map[key]bool
	closed   bool

	wg sync.WaitGroup
}

func New(repos *repositories.Repositories, bridge *agentbridge.Bridge, solver *depsolver.Solver, broadcaster Broadcaster, maxConcurrency int, enableDeduplication bool) *Queue {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	q := &Queue{
		repos:       repos,
		bridge:      bridge,
		solver:      solver,
		broadcaster: broadcaster,
		dedupe:      enableDeduplication,
		numWorkers:  maxConcurrency,
		inFlight:    make(map[key]bool),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.numWorkers; i++ {
		q.wg.Add(1)
		go q.runWorker(ctx)
	}
}

// Stop signals workers to drain and waits for them to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	q.wg.Wait()
}

// Enqueue admits req unless its key is already in-flight or queued and
// de-duplication is enabled (spec §4.9).
func (q *Queue) Enqueue(req Request) EnqueueStatus {
	k := key{req.WorkspaceID, req.RepositoryID}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dedupe && q.inFlight[k] {
		return StatusDroppedDuplicate
	}
	q.inFlight[k] = true
	q.items = append(q.items, req)
	q.cond.Signal()
	return StatusAccepted
}

// Depth reports the number of requests queued but not yet picked up by a worker.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) runWorker(ctx context.Context) {
	defer q.wg.Done()
	for {
		req, ok := q.dequeue()
		if !ok {
			return
		}
		q.process(ctx, req)
		q.release(req)
	}
}

func (q *Queue) dequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Request{}, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req, true
}

func (q *Queue) release(req Request) {
	q.mu.Lock()
	delete(q.inFlight, key{req.WorkspaceID, req.RepositoryID})
	q.mu.Unlock()
}

func (q *Queue) process(ctx context.Context, req Request) {
	link, err := q.repos.Links.GetByWorkspaceAndRepo(ctx, req.WorkspaceID, req.RepositoryID)
	if err != nil {
		logging.Error("sync queue: link not found for workspace %d repo %d: %v", req.WorkspaceID, req.RepositoryID, err)
		return
	}

	workspace, err := q.repos.Workspaces.Get(ctx, req.WorkspaceID)
	if err != nil {
		logging.Error("sync queue: workspace %d not found: %v", req.WorkspaceID, err)
		return
	}
	repo, err := q.repos.Repos.Get(ctx, req.RepositoryID)
	if err != nil {
		logging.Error("sync queue: repository %d not found: %v", req.RepositoryID, err)
		return
	}

	root := ""
	if workspace.RootPath != nil {
		root = *workspace.RootPath
	}

	var (
		version, branch string
		ahead, behind   int32
		hasUpstream     bool
		projectCount    *int32
		projects        []rpc.ProjectInfo
	)

	if link.SyncStatus == models.SyncStatusNotCloned || link.GitVersion == nil {
		result, err := q.bridge.SyncRepository(ctx, rpc.SyncRepositoryRequest{
			WorkspaceName: workspace.Name, WorkspaceID: workspace.ID, WorkspaceRoot: root,
			RepositoryID: repo.ID, RepositoryName: repo.Name, CloneURL: repo.CloneURL,
		})
		if err != nil {
			q.fail(ctx, link.ID, err)
			return
		}
		version, branch, ahead, behind = result.Version, result.Branch, result.Ahead, result.Behind
		hasUpstream = true
		projects = result.Projects
		n := int32(len(projects))
		projectCount = &n
	} else {
		result, err := q.bridge.RefreshRepositoryVersion(ctx, rpc.RefreshRepositoryVersionRequest{
			WorkspaceName: workspace.Name, WorkspaceRoot: root, RepositoryName: repo.Name,
		})
		if err != nil {
			q.fail(ctx, link.ID, err)
			return
		}
		version, branch, ahead, behind, hasUpstream = result.Version, result.Branch, result.Ahead, result.Behind, result.HasUpstream

		projResult, err := q.bridge.RefreshRepositoryProjects(ctx, rpc.RefreshRepositoryProjectsRequest{
			WorkspaceRoot: root, RepositoryName: repo.Name,
		})
		if err != nil {
			logging.Warn("sync queue: refresh projects for repo %d: %v", repo.ID, err)
		} else {
			projects = projResult.Projects
			n := int32(len(projects))
			projectCount = &n
		}
	}

	if err := q.repos.Links.UpdateSyncResult(ctx, link.ID, version, branch, ahead, behind, hasUpstream, projectCount, models.SyncStatusInSync, nil); err != nil {
		logging.Error("sync queue: failed to persist sync result for link %d: %v", link.ID, err)
		return
	}

	q.persistProjects(ctx, workspace.ID, repo.ID, projects)

	if err := q.broadcaster.Publish(req.WorkspaceID); err != nil {
		logging.Error("sync queue: failed to publish WorkspaceSynced(%d): %v", req.WorkspaceID, err)
	}
}

// persistProjects upserts the agent-parsed projects and their declared
// references, then re-derives the workspace's dependency levels, mirroring
// handlers.go's persistBranches.
func (q *Queue) persistProjects(ctx context.Context, workspaceID, repositoryID int64, projects []rpc.ProjectInfo) {
	if len(projects) == 0 {
		return
	}
	if err := depsolver.PersistProjects(ctx, q.repos, workspaceID, repositoryID, projects); err != nil {
		logging.Warn("sync queue: persist projects for workspace %d repo %d: %v", workspaceID, repositoryID, err)
		return
	}
	if q.solver == nil {
		return
	}
	if err := q.solver.Solve(ctx, workspaceID); err != nil {
		logging.Warn("sync queue: recompute dependency levels for workspace %d: %v", workspaceID, err)
	}
}

func (q *Queue) fail(ctx context.Context, linkID int64, err error) {
	logging.Error("sync queue: transport failure for link %d: kind=%s err=%v", linkID, graymoonerr.Classify(err), err)
	if setErr := q.repos.Links.SetError(ctx, linkID, err.Error()); setErr != nil {
		logging.Error("sync queue: failed to persist error for link %d: %v", linkID, setErr)
	}
}
