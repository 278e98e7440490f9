// Package depsolver is the Dependency Solver (spec C13): derives a
// repository-level DAG from a workspace's parsed project files, detects
// cycles, and assigns build levels by longest-path-from-source. Grounded on
// the teacher's DeclarativeSync plan-computation step
// (internal/services/declarative_sync.go), reworked from the teacher's
// resource-diff graph into a package-reference dependency graph.
package depsolver

import (
	"context"
	"fmt"
	"sort"

	"graymoon/internal/db/repositories"
	"graymoon/internal/logging"
	"graymoon/pkg/models"
)

// Solver recomputes the dependency graph for one workspace at a time.
type Solver struct {
	repos *repositories.Repositories
}

func New(repos *repositories.Repositories) *Solver {
	return &Solver{repos: repos}
}

// repoNode is the per-repository working state during leveling.
type repoNode struct {
	id       int64
	name     string
	edges    map[int64]bool // repo id -> true, R -> R' dependency (R depends on R')
	level    *int32
	visiting bool
	visited  bool
	cyclic   bool
}

// Solve runs the full pipeline (steps 1-6 of the Dependency Solver
// contract) and persists the result on every link in the workspace whose
// repository has at least one project; other links are left unchanged.
func (s *Solver) Solve(ctx context.Context, workspaceID int64) error {
	projects, err := s.repos.Projects.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("depsolver: list projects: %w", err)
	}
	references, err := s.repos.References.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("depsolver: list project references: %w", err)
	}
	links, err := s.repos.Links.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("depsolver: list links: %w", err)
	}
	repoRows, err := s.reposByID(ctx, links)
	if err != nil {
		return err
	}
	linkByRepo := make(map[int64]*models.WorkspaceRepositoryLink, len(links))
	for _, l := range links {
		linkByRepo[l.RepositoryID] = l
	}

	edges, projectEdges := buildProjectEdges(projects, references)
	if err := s.repos.Dependencies.ReplaceForWorkspace(ctx, workspaceID, projectEdges); err != nil {
		return fmt.Errorf("depsolver: persist project edges: %w", err)
	}

	nodes := buildRepoGraph(projects, edges, repoRows)
	levelRepos(nodes)

	dependents, unmatched := countDependents(nodes, edges, linkByRepo)

	for _, link := range links {
		node, ok := nodes[link.RepositoryID]
		if !ok {
			continue
		}
		if node.cyclic {
			logging.Warn("depsolver: workspace %d repo %d participates in a dependency cycle; dependencyLevel left null", workspaceID, link.RepositoryID)
		}
		if err := s.repos.Links.UpdateDependencyInfo(ctx, link.ID, node.level, dependents[link.RepositoryID], unmatched[link.RepositoryID]); err != nil {
			return fmt.Errorf("depsolver: persist dependency info for link %d: %w", link.ID, err)
		}
	}
	return nil
}

func (s *Solver) reposByID(ctx context.Context, links []*models.WorkspaceRepositoryLink) (map[int64]*models.Repository, error) {
	out := make(map[int64]*models.Repository, len(links))
	for _, l := range links {
		if _, ok := out[l.RepositoryID]; ok {
			continue
		}
		r, err := s.repos.Repos.Get(ctx, l.RepositoryID)
		if err != nil {
			return nil, fmt.Errorf("depsolver: load repository %d: %w", l.RepositoryID, err)
		}
		out[l.RepositoryID] = r
	}
	return out, nil
}

// buildProjectEdges implements step 1: for each project that declares a
// package reference, if some other workspace project exports that package
// id, record a project-level dependency edge carrying the declared version.
func buildProjectEdges(projects []*models.WorkspaceProject, references map[int64][]models.ProjectReference) (repoEdges map[int64]map[int64]string, projectEdges []models.ProjectDependency) {
	exporters := make(map[string]*models.WorkspaceProject)
	for _, p := range projects {
		if p.PackageID != nil {
			exporters[*p.PackageID] = p
		}
		exporters[p.Name] = p
	}

	repoEdges = make(map[int64]map[int64]string)
	seen := make(map[[2]int64]bool) // (dependentID, exporterID): at most one edge per pair

	for _, dependent := range projects {
		for _, ref := range references[dependent.ID] {
			exporter, ok := exporters[ref.PackageID]
			if !ok || exporter.RepositoryID == dependent.RepositoryID || exporter.ID == dependent.ID {
				continue
			}
			pair := [2]int64{dependent.ID, exporter.ID}
			if seen[pair] {
				continue
			}
			seen[pair] = true

			projectEdges = append(projectEdges, models.ProjectDependency{
				WorkspaceID:   dependent.WorkspaceID,
				DependentID:   dependent.ID,
				ReferencedID:  exporter.ID,
				VersionString: ref.Version,
			})
			if repoEdges[dependent.RepositoryID] == nil {
				repoEdges[dependent.RepositoryID] = make(map[int64]string)
			}
			if existing := repoEdges[dependent.RepositoryID][exporter.RepositoryID]; existing == "" {
				repoEdges[dependent.RepositoryID][exporter.RepositoryID] = ref.Version
			}
		}
	}
	return repoEdges, projectEdges
}

// buildRepoGraph implements step 2: collapse project edges to a
// repository-level DAG, vertex = repository.
func buildRepoGraph(projects []*models.WorkspaceProject, repoEdges map[int64]map[int64]string, repoRows map[int64]*models.Repository) map[int64]*repoNode {
	nodes := make(map[int64]*repoNode)
	seen := make(map[int64]bool)
	for _, p := range projects {
		if seen[p.RepositoryID] {
			continue
		}
		seen[p.RepositoryID] = true
		name := fmt.Sprintf("repo-%d", p.RepositoryID)
		if r, ok := repoRows[p.RepositoryID]; ok {
			name = r.Name
		}
		nodes[p.RepositoryID] = &repoNode{id: p.RepositoryID, name: name, edges: make(map[int64]bool)}
	}
	for from, tos := range repoEdges {
		if _, ok := nodes[from]; !ok {
			continue
		}
		for to := range tos {
			if _, ok := nodes[to]; !ok {
				continue
			}
			nodes[from].edges[to] = true
		}
	}
	return nodes
}

// levelRepos implements steps 3-4: cycle detection via DFS coloring, then
// longest-path leveling for the acyclic subgraph. Roots are visited in
// stable repo-name order for deterministic level assignment.
func levelRepos(nodes map[int64]*repoNode) {
	ordered := make([]*repoNode, 0, len(nodes))
	for _, n := range nodes {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].name < ordered[j].name })

	var visit func(n *repoNode) int32
	visit = func(n *repoNode) int32 {
		if n.visited {
			if n.cyclic {
				return 0
			}
			return *n.level
		}
		if n.visiting {
			n.cyclic = true
			return 0
		}
		n.visiting = true

		deps := make([]int64, 0, len(n.edges))
		for to := range n.edges {
			deps = append(deps, to)
		}
		sort.Slice(deps, func(i, j int) bool {
			return nodes[deps[i]].name < nodes[deps[j]].name
		})

		var maxDepLevel int32 = -1
		for _, to := range deps {
			dep := nodes[to]
			depLevel := visit(dep)
			if dep.cyclic {
				n.cyclic = true
				continue
			}
			if depLevel > maxDepLevel {
				maxDepLevel = depLevel
			}
		}

		n.visiting = false
		n.visited = true
		if n.cyclic {
			n.level = nil
			return 0
		}
		level := maxDepLevel + 1
		n.level = &level
		return level
	}

	for _, n := range ordered {
		if !n.visited {
			visit(n)
		}
	}
}

// countDependents implements step 5: per-repo outgoing edge count and
// unmatched-version count (edge whose recorded version differs from the
// referenced repo's current gitVersion). repoEdges carries one representative
// declared version per repo pair, from buildProjectEdges.
func countDependents(nodes map[int64]*repoNode, repoEdges map[int64]map[int64]string, linkByRepo map[int64]*models.WorkspaceRepositoryLink) (dependencies, unmatched map[int64]int32) {
	dependencies = make(map[int64]int32)
	unmatched = make(map[int64]int32)
	for id, n := range nodes {
		dependencies[id] = int32(len(n.edges))

		var bad int32
		for to, version := range repoEdges[id] {
			if version == "" {
				continue
			}
			depLink, ok := linkByRepo[to]
			if !ok || depLink.GitVersion == nil {
				continue
			}
			if version != *depLink.GitVersion {
				bad++
			}
		}
		unmatched[id] = bad
	}
	return dependencies, unmatched
}
