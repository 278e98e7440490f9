// Package pushscheduler is the Push Scheduler (spec C14), the dependency-
// ordered, registry-synchronised push algorithm. Grounded on the teacher's
// DeclarativeSync orchestration shape (internal/services/declarative_sync.go:
// setup -> plan -> per-phase execution -> progress callback -> broadcast)
// and its Scheduler's cancellation-aware polling loop
// (internal/services/scheduler.go), reworked around dependency levels instead
// of declarative resource phases, using golang.org/x/sync/errgroup for the
// bounded-parallel push batches that the teacher ran sequentially.
package pushscheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"graymoon/internal/config"
	"graymoon/internal/control/agentbridge"
	"graymoon/internal/control/registryprober"
	"graymoon/internal/db/repositories"
	"graymoon/internal/graymoonerr"
	"graymoon/internal/logging"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

const pollInterval = 5 * time.Second

// ProgressFunc reports human-readable progress, e.g. wait-for-packages status.
type ProgressFunc func(message string)

// RepoErrorFunc reports a per-repository failure during the push.
type RepoErrorFunc func(repoID int64, message string)

// Broadcaster is implemented by internal/control/broadcast.Channel.
type Broadcaster interface {
	Publish(workspaceID int64) error
}

// Scheduler runs one push at a time per call; concurrent pushes for
// different workspaces are independent.
type Scheduler struct {
	repos       *repositories.Repositories
	bridge      *agentbridge.Bridge
	prober      *registryprober.Prober
	broadcaster Broadcaster
	cfg         config.WorkspaceConfig
}

func New(repos *repositories.Repositories, bridge *agentbridge.Bridge, prober *registryprober.Prober, broadcaster Broadcaster, cfg config.WorkspaceConfig) *Scheduler {
	return &Scheduler{repos: repos, bridge: bridge, prober: prober, broadcaster: broadcaster, cfg: cfg}
}

// Request parameterizes one push run.
type Request struct {
	WorkspaceID int64
	RepoIDs     []int64 // optional subset; nil/empty means all eligible repos
	OnProgress  ProgressFunc
	OnRepoError RepoErrorFunc
}

// Result summarizes a completed (possibly partial) push.
type Result struct {
	PushedCount  int
	Synchronized bool
	Message      string
}

type payload struct {
	repoID           int64
	linkID           int64
	repoName         string
	connectorID      int64
	connectorToken   *string
	level            int32
	requiredPackages []requiredPackage
}

type requiredPackage struct {
	packageID          string
	version            string
	matchedConnectorID *int64
}

func (s *Scheduler) progress(req Request, msg string) {
	if req.OnProgress != nil {
		req.OnProgress(msg)
	}
}

func (s *Scheduler) repoError(req Request, repoID int64, msg string) {
	if req.OnRepoError != nil {
		req.OnRepoError(repoID, msg)
	}
}

// Push runs the full algorithm described in spec §4.11.
func (s *Scheduler) Push(ctx context.Context, req Request) (*Result, error) {
	if !s.bridge.IsAgentConnected() {
		return nil, graymoonerr.ErrAgentDisconnected
	}

	workspace, err := s.repos.Workspaces.Get(ctx, req.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("push scheduler: load workspace %d: %w", req.WorkspaceID, err)
	}

	if err := s.refreshMatchedConnectors(ctx, req.WorkspaceID); err != nil {
		logging.Warn("push scheduler: refresh matched connectors for workspace %d: %v", req.WorkspaceID, err)
	}

	payloads, dependents, err := s.computePlan(ctx, req.WorkspaceID, req.RepoIDs)
	if err != nil {
		return nil, fmt.Errorf("push scheduler: compute plan: %w", err)
	}
	if len(payloads) == 0 {
		return &Result{Message: "nothing to push"}, nil
	}

	if synchronizedPossible(payloads) {
		return s.pushSynchronized(ctx, req, workspace, payloads, dependents)
	}
	return s.pushNonSynchronized(ctx, req, workspace, payloads)
}

// refreshMatchedConnectors implements setup step 2: for every workspace
// project declaring a package id, probe active PackageRegistry connectors
// in order and record the first match (or null).
func (s *Scheduler) refreshMatchedConnectors(ctx context.Context, workspaceID int64) error {
	projects, err := s.repos.Projects.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	registries, err := s.repos.Connectors.ListActiveByKind(ctx, models.ConnectorKindPackageRegistry)
	if err != nil {
		return err
	}

	for _, p := range projects {
		if p.PackageID == nil {
			continue
		}
		var matched *int64
		for _, connector := range registries {
			if s.prober.PackageExists(ctx, connector, *p.PackageID) {
				id := connector.ID
				matched = &id
				break
			}
		}
		if err := s.repos.Projects.SetMatchedConnector(ctx, p.ID, matched); err != nil {
			logging.Warn("push scheduler: set matched connector for project %d: %v", p.ID, err)
		}
	}
	return nil
}

// computePlan implements setup steps 3-5: build PushRepoPayload per eligible
// repo, intersected with the caller's subset and with outgoing commits > 0.
// It also returns the repo-level dependents index (referenced repo -> repos
// that depend on it), so a failure at one level can abort its dependents at
// higher levels per spec §4.11 step 4.
func (s *Scheduler) computePlan(ctx context.Context, workspaceID int64, repoIDFilter []int64) ([]payload, map[int64][]int64, error) {
	links, err := s.repos.Links.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	projects, err := s.repos.Projects.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	deps, err := s.repos.Dependencies.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}

	projectByID := make(map[int64]*models.WorkspaceProject, len(projects))
	for _, p := range projects {
		projectByID[p.ID] = p
	}
	linkByRepo := make(map[int64]*models.WorkspaceRepositoryLink, len(links))
	for _, l := range links {
		linkByRepo[l.RepositoryID] = l
	}

	// repo-level adjacency: dependent repo -> set of referenced repos, built
	// fresh from the persisted project edges (same derivation the
	// Dependency Solver performs, but scoped to this push's view).
	repoEdges := make(map[int64]map[int64]bool)
	for _, d := range deps {
		dependent, ok1 := projectByID[d.DependentID]
		referenced, ok2 := projectByID[d.ReferencedID]
		if !ok1 || !ok2 || dependent.RepositoryID == referenced.RepositoryID {
			continue
		}
		if repoEdges[dependent.RepositoryID] == nil {
			repoEdges[dependent.RepositoryID] = make(map[int64]bool)
		}
		repoEdges[dependent.RepositoryID][referenced.RepositoryID] = true
	}

	wantFilter := toSet(repoIDFilter)

	var payloads []payload
	for _, l := range links {
		if len(wantFilter) > 0 && !wantFilter[l.RepositoryID] {
			continue
		}
		if l.Ahead == nil || *l.Ahead <= 0 {
			continue
		}
		repo, err := s.repos.Repos.Get(ctx, l.RepositoryID)
		if err != nil {
			return nil, nil, fmt.Errorf("load repository %d: %w", l.RepositoryID, err)
		}
		connector, err := s.repos.Connectors.Get(ctx, repo.ConnectorID)
		if err != nil {
			return nil, nil, fmt.Errorf("load connector %d: %w", repo.ConnectorID, err)
		}

		level := int32(0)
		if l.DependencyLevel != nil {
			level = *l.DependencyLevel
		}

		required := transitiveRequiredPackages(l.RepositoryID, repoEdges, projectByID, linkByRepo)

		payloads = append(payloads, payload{
			repoID: l.RepositoryID, linkID: l.ID, repoName: repo.Name, connectorID: connector.ID,
			connectorToken: connector.Token, level: level, requiredPackages: required,
		})
	}

	dependents := make(map[int64][]int64)
	for from, tos := range repoEdges {
		for to := range tos {
			dependents[to] = append(dependents[to], from)
		}
	}
	return payloads, dependents, nil
}

// transitiveRequiredPackages walks repoEdges from repoID to every
// transitively-depended-on repo and collects the packages each one
// exports, deduplicated by (packageId, version).
func transitiveRequiredPackages(repoID int64, repoEdges map[int64]map[int64]bool, projectByID map[int64]*models.WorkspaceProject, linkByRepo map[int64]*models.WorkspaceRepositoryLink) []requiredPackage {
	visited := map[int64]bool{repoID: true}
	queue := []int64{repoID}
	seenPkg := make(map[string]requiredPackage)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for to := range repoEdges[cur] {
			if visited[to] {
				continue
			}
			visited[to] = true
			queue = append(queue, to)

			depLink := linkByRepo[to]
			version := ""
			if depLink != nil && depLink.GitVersion != nil {
				version = *depLink.GitVersion
			}
			for _, p := range projectByID {
				if p.RepositoryID != to || p.PackageID == nil {
					continue
				}
				key := *p.PackageID + "@" + version
				seenPkg[key] = requiredPackage{packageID: *p.PackageID, version: version, matchedConnectorID: p.MatchedConnectorID}
			}
		}
	}

	out := make([]requiredPackage, 0, len(seenPkg))
	for _, rp := range seenPkg {
		out = append(out, rp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].packageID < out[j].packageID })
	return out
}

func toSet(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// synchronizedPossible implements the synchronised-vs-non-synchronised
// decision: every required package across every payload must already carry
// a matched connector id.
func synchronizedPossible(payloads []payload) bool {
	for _, p := range payloads {
		for _, rp := range p.requiredPackages {
			if rp.matchedConnectorID == nil {
				return false
			}
		}
	}
	return true
}

func (s *Scheduler) pushSynchronized(ctx context.Context, req Request, workspace *models.Workspace, payloads []payload, dependents map[int64][]int64) (*Result, error) {
	levels := groupByLevel(payloads)
	pushed := 0
	failed := make(map[int64]bool)

	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			return nil, graymoonerr.New(graymoonerr.KindCancelled, "push cancelled before level %d", level.number)
		}

		repos := excludeFailedDependents(level.payloads, failed)
		if len(repos) == 0 {
			continue
		}

		if err := s.waitForPackages(ctx, req, repos); err != nil {
			for _, p := range repos {
				msg := err.Error()
				_ = s.repos.Links.SetError(ctx, p.linkID, msg)
				s.repoError(req, p.repoID, msg)
				markDependentsFailed(p.repoID, dependents, failed)
			}
			break
		}

		succeeded, err := s.pushBatch(ctx, req, repos)
		if err != nil {
			return nil, err
		}
		for _, p := range repos {
			if _, ok := succeeded[p.repoID]; !ok {
				markDependentsFailed(p.repoID, dependents, failed)
			}
		}

		s.refreshVersions(ctx, workspace, succeeded)
		pushed += len(succeeded)

		if err := s.broadcaster.Publish(req.WorkspaceID); err != nil {
			logging.Warn("push scheduler: publish WorkspaceSynced(%d) at level %d: %v", req.WorkspaceID, level.number, err)
		}
	}

	return &Result{PushedCount: pushed, Synchronized: true, Message: fmt.Sprintf("pushed %d repositories", pushed)}, nil
}

func (s *Scheduler) pushNonSynchronized(ctx context.Context, req Request, workspace *models.Workspace, payloads []payload) (*Result, error) {
	succeeded, err := s.pushBatch(ctx, req, payloads)
	if err != nil {
		return nil, err
	}
	s.refreshVersions(ctx, workspace, succeeded)
	if err := s.broadcaster.Publish(req.WorkspaceID); err != nil {
		logging.Warn("push scheduler: publish WorkspaceSynced(%d): %v", req.WorkspaceID, err)
	}
	return &Result{PushedCount: len(succeeded), Synchronized: false, Message: fmt.Sprintf("pushed %d repositories (non-synchronised)", len(succeeded))}, nil
}

type level struct {
	number   int32
	payloads []payload
}

func groupByLevel(payloads []payload) []level {
	byLevel := make(map[int32][]payload)
	for _, p := range payloads {
		byLevel[p.level] = append(byLevel[p.level], p)
	}
	numbers := make([]int32, 0, len(byLevel))
	for n := range byLevel {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	out := make([]level, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, level{number: n, payloads: byLevel[n]})
	}
	return out
}

func excludeFailedDependents(payloads []payload, failed map[int64]bool) []payload {
	var out []payload
	for _, p := range payloads {
		if !failed[p.repoID] {
			out = append(out, p)
		}
	}
	return out
}

// markDependentsFailed marks repoID and every repo that transitively depends
// on it (via dependents, built by computePlan from the persisted project
// edges) as failed, so a later, higher level skips them in
// excludeFailedDependents per spec §4.11 step 4.
func markDependentsFailed(repoID int64, dependents map[int64][]int64, failed map[int64]bool) {
	queue := []int64{repoID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if failed[cur] {
			continue
		}
		failed[cur] = true
		queue = append(queue, dependents[cur]...)
	}
}

// waitForPackages implements step 2: poll every distinct required package
// across repos until present or the combined timeout elapses.
func (s *Scheduler) waitForPackages(ctx context.Context, req Request, repos []payload) error {
	type want struct {
		connectorID int64
		packageID   string
		version     string
	}
	seen := make(map[want]bool)
	for _, p := range repos {
		for _, rp := range p.requiredPackages {
			if rp.matchedConnectorID == nil {
				continue
			}
			seen[want{*rp.matchedConnectorID, rp.packageID, rp.version}] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}

	pending := make([]want, 0, len(seen))
	for w := range seen {
		pending = append(pending, w)
	}
	n := len(pending)

	timeout := s.cfg.PushWaitTimeout(n)
	deadline := time.Now().Add(timeout)

	connectorCache := make(map[int64]*models.Connector)
	connector := func(id int64) *models.Connector {
		if c, ok := connectorCache[id]; ok {
			return c
		}
		c, err := s.repos.Connectors.Get(ctx, id)
		if err != nil {
			return nil
		}
		connectorCache[id] = c
		return c
	}

	for {
		remaining := pending[:0:0]
		for _, w := range pending {
			c := connector(w.connectorID)
			if c == nil {
				remaining = append(remaining, w)
				continue
			}
			if !s.prober.PackageVersionExists(ctx, c, w.packageID, w.version) {
				remaining = append(remaining, w)
			}
		}
		pending = remaining

		if len(pending) == 0 {
			return nil
		}

		if time.Now().After(deadline) {
			return graymoonerr.New(graymoonerr.KindDependencyUnsatisfied, "%d of %d dependencies not in registry after %s", len(pending), n, timeout)
		}

		s.progress(req, fmt.Sprintf("waiting for %d of %d dependencies; %s remaining", len(pending), n, time.Until(deadline).Round(time.Second)))

		select {
		case <-ctx.Done():
			return graymoonerr.New(graymoonerr.KindCancelled, "push cancelled during wait-for-packages")
		case <-time.After(pollInterval):
		}
	}
}

// pushBatch implements step 4: bounded-parallel push via the Agent Bridge.
// It returns the payloads that pushed successfully, keyed by repo id.
func (s *Scheduler) pushBatch(ctx context.Context, req Request, repos []payload) (map[int64]payload, error) {
	succeeded := make(map[int64]payload)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(s.cfg.MaxConcurrentGitOperations, 1))

	for _, p := range repos {
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil // cancellation: skip new pushes, don't fail the group
			}
			result, err := s.bridge.PushRepository(ctx, rpc.PushRepositoryRequest{
				RepositoryID: p.repoID, RepositoryName: p.repoName, Token: p.connectorToken,
			})
			if err != nil {
				s.repoError(req, p.repoID, err.Error())
				return nil
			}
			if !result.Success {
				s.repoError(req, p.repoID, result.ErrorMessage)
				return nil
			}
			mu.Lock()
			succeeded[p.repoID] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return succeeded, nil
}

// refreshVersions implements step 5: after a successful push, re-read the
// repo's version/branch/ahead-behind via the Agent Bridge and persist it.
func (s *Scheduler) refreshVersions(ctx context.Context, workspace *models.Workspace, succeeded map[int64]payload) {
	root := ""
	if workspace.RootPath != nil {
		root = *workspace.RootPath
	}
	for repoID, p := range succeeded {
		result, err := s.bridge.RefreshRepositoryVersion(ctx, rpc.RefreshRepositoryVersionRequest{
			WorkspaceName: workspace.Name, WorkspaceRoot: root, RepositoryName: p.repoName,
		})
		if err != nil {
			logging.Warn("push scheduler: refresh version for repo %d after push: %v", repoID, err)
			continue
		}
		if err := s.repos.Links.UpdateSyncResult(ctx, p.linkID, result.Version, result.Branch, result.Ahead, result.Behind, result.HasUpstream, nil, models.SyncStatusInSync, nil); err != nil {
			logging.Warn("push scheduler: persist refreshed version for link %d: %v", p.linkID, err)
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
