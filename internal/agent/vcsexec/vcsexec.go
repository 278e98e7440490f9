// Package vcsexec is the VCS Executor (spec C1): a small typed API wrapping
// local `git` invocations and a version-calculation step. It never returns
// raw process output to callers; every operation returns a typed result or
// a graymoonerr-classified error.
package vcsexec

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"graymoon/internal/graymoonerr"
	"graymoon/internal/logging"
	"graymoon/pkg/rpc"
)

// Executor runs VCS operations rooted at a workspace directory on the local
// filesystem. Fs is injected so tests can exercise EnsureWorkspace/exists
// checks against an in-memory filesystem without touching disk.
type Executor struct {
	Fs afero.Fs
}

// New builds an Executor backed by the real OS filesystem.
func New() *Executor {
	return &Executor{Fs: afero.NewOsFs()}
}

func (e *Executor) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", graymoonerr.VcsFailure(fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out))), "git "+strings.Join(args, " "))
	}
	return string(out), nil
}

// EnsureWorkspace creates dir if absent; idempotent per spec §4.3.
func (e *Executor) EnsureWorkspace(dir string) error {
	exists, err := afero.DirExists(e.Fs, dir)
	if err != nil {
		return fmt.Errorf("ensure workspace: %w", err)
	}
	if exists {
		return nil
	}
	if err := e.Fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure workspace: %w", err)
	}
	return nil
}

// RepositoryExists reports whether repoDir looks like a cloned git checkout.
func (e *Executor) RepositoryExists(repoDir string) bool {
	exists, _ := afero.DirExists(e.Fs, repoDir+"/.git")
	return exists
}

// Clone clones cloneURL into repoDir, injecting token as HTTP basic auth when present.
func (e *Executor) Clone(ctx context.Context, workspaceDir, repoDir, cloneURL string, token *string) error {
	url := cloneURL
	if token != nil && *token != "" {
		url = withToken(cloneURL, *token)
	}
	_, err := e.run(ctx, workspaceDir, "clone", url, repoDir)
	return err
}

func withToken(cloneURL, token string) string {
	if strings.HasPrefix(cloneURL, "https://") {
		return "https://" + token + "@" + strings.TrimPrefix(cloneURL, "https://")
	}
	return cloneURL
}

// Fetch fetches from origin, including tags (needed for version calc).
func (e *Executor) Fetch(ctx context.Context, repoDir string) error {
	_, err := e.run(ctx, repoDir, "fetch", "--tags", "--prune", "origin")
	return err
}

// CurrentBranch returns the checked-out branch name.
func (e *Executor) CurrentBranch(ctx context.Context, repoDir string) (string, error) {
	out, err := e.run(ctx, repoDir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// AheadBehind computes the outgoing/incoming commit counts vs origin/<branch>.
func (e *Executor) AheadBehind(ctx context.Context, repoDir, branch string) (ahead, behind int32, hasUpstream bool, err error) {
	out, runErr := e.run(ctx, repoDir, "rev-list", "--left-right", "--count", branch+"...origin/"+branch)
	if runErr != nil {
		return 0, 0, false, nil // no upstream yet; not a hard failure
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, false, fmt.Errorf("unexpected rev-list output: %q", out)
	}
	a, _ := strconv.Atoi(fields[0])
	b, _ := strconv.Atoi(fields[1])
	return int32(a), int32(b), true, nil
}

// GitVersion computes a SemVer-ish string from the nearest reachable tag,
// the teacher's analogue of GitVersion.exe: `git describe --tags` parsed
// into MAJOR.MINOR.PATCH(+commits).
func (e *Executor) GitVersion(ctx context.Context, repoDir string) (string, error) {
	out, err := e.run(ctx, repoDir, "describe", "--tags", "--long", "--match", "v[0-9]*")
	if err != nil {
		return "0.1.0+0", nil // untagged repo: fall back to a baseline version
	}
	return parseDescribe(strings.TrimSpace(out)), nil
}

func parseDescribe(describe string) string {
	// "v1.2.3-4-gabcdef" -> "1.2.3+4"
	trimmed := strings.TrimPrefix(describe, "v")
	parts := strings.Split(trimmed, "-")
	if len(parts) < 3 {
		return trimmed
	}
	return parts[0] + "+" + parts[1]
}

// Push pushes HEAD (optionally a specific branch) to origin with the given token.
func (e *Executor) Push(ctx context.Context, repoDir string, branch *string, token *string) error {
	args := []string{"push", "origin"}
	if branch != nil && *branch != "" {
		args = append(args, *branch)
	}
	if token != nil && *token != "" {
		if _, err := e.run(ctx, repoDir, "config", "--local", "http.extraheader", "Authorization: Basic "+basicAuth(*token)); err != nil {
			return err
		}
	}
	_, err := e.run(ctx, repoDir, args...)
	return err
}

func basicAuth(token string) string {
	return base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
}

// CheckoutBranch checks out an existing local or remote-tracking branch.
func (e *Executor) CheckoutBranch(ctx context.Context, repoDir, branch string) error {
	_, err := e.run(ctx, repoDir, "checkout", branch)
	return err
}

// CreateBranch creates and checks out a new branch from `from`.
func (e *Executor) CreateBranch(ctx context.Context, repoDir, branch, from string) error {
	_, err := e.run(ctx, repoDir, "checkout", "-b", branch, from)
	return err
}

// SyncToDefaultBranch fetches and fast-forwards the repo's default branch.
func (e *Executor) SyncToDefaultBranch(ctx context.Context, repoDir string) error {
	if err := e.Fetch(ctx, repoDir); err != nil {
		return err
	}
	def, err := e.DefaultBranch(ctx, repoDir)
	if err != nil {
		return err
	}
	if err := e.CheckoutBranch(ctx, repoDir, def); err != nil {
		return err
	}
	_, err = e.run(ctx, repoDir, "merge", "--ff-only", "origin/"+def)
	return err
}

// DefaultBranch resolves origin/HEAD to find the default branch name.
func (e *Executor) DefaultBranch(ctx context.Context, repoDir string) (string, error) {
	out, err := e.run(ctx, repoDir, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err != nil {
		return "main", nil
	}
	ref := strings.TrimSpace(out)
	return strings.TrimPrefix(ref, "refs/remotes/origin/"), nil
}

// ListBranches enumerates local and remote branches, marking the default one.
func (e *Executor) ListBranches(ctx context.Context, repoDir string) ([]rpc.BranchInfo, error) {
	def, _ := e.DefaultBranch(ctx, repoDir)

	var branches []rpc.BranchInfo
	out, err := e.run(ctx, repoDir, "for-each-ref", "--format=%(refname:short)", "refs/heads", "refs/remotes")
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasSuffix(name, "/HEAD") {
			continue
		}
		isRemote := strings.HasPrefix(name, "origin/")
		short := strings.TrimPrefix(name, "origin/")
		branches = append(branches, rpc.BranchInfo{Name: short, IsRemote: isRemote, Default: short == def})
	}
	return branches, nil
}

// CommitSync fetches then integrates origin/<branch> via rebase, falling
// back to merge on conflict, matching spec §4.3's CommitSyncRepository.
func (e *Executor) CommitSync(ctx context.Context, repoDir string) (strategy, version, branch string, err error) {
	if err = e.Fetch(ctx, repoDir); err != nil {
		return "", "", "", err
	}
	branch, err = e.CurrentBranch(ctx, repoDir)
	if err != nil {
		return "", "", "", err
	}
	if _, rebaseErr := e.run(ctx, repoDir, "rebase", "origin/"+branch); rebaseErr != nil {
		logging.Warn("rebase failed for %s, aborting and falling back to merge: %v", repoDir, rebaseErr)
		_, _ = e.run(ctx, repoDir, "rebase", "--abort")
		if _, mergeErr := e.run(ctx, repoDir, "merge", "origin/"+branch); mergeErr != nil {
			return "", "", "", &mergeConflictError{cause: mergeErr}
		}
		strategy = "merge"
	} else {
		strategy = "rebase"
	}
	version, err = e.GitVersion(ctx, repoDir)
	return strategy, version, branch, err
}

// RemoteOriginURL returns the configured `origin` remote URL.
func (e *Executor) RemoteOriginURL(ctx context.Context, repoDir string) (string, error) {
	out, err := e.run(ctx, repoDir, "remote", "get-url", "origin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// WorkspaceExists reports whether dir exists on the filesystem.
func (e *Executor) WorkspaceExists(dir string) bool {
	exists, _ := afero.DirExists(e.Fs, dir)
	return exists
}

// RewriteDependencyVersions rewrites PackageReference Version attributes in
// place for the given project file updates, matching
// SyncRepositoryDependencies's idempotent "second call updates nothing"
// contract: a version already equal to NewVersion is left untouched and not
// counted.
func (e *Executor) RewriteDependencyVersions(workspaceRoot, repoName string, updates []rpc.DependencyUpdate) (int, error) {
	updated := 0
	for _, u := range updates {
		path := workspaceRoot + "/" + repoName + "/" + u.RelativePath
		data, err := afero.ReadFile(e.Fs, path)
		if err != nil {
			return updated, fmt.Errorf("rewrite dependency: %w", err)
		}
		content := string(data)
		oldAttr := `Include="` + u.PackageID + `" Version="` + u.OldVersion + `"`
		newAttr := `Include="` + u.PackageID + `" Version="` + u.NewVersion + `"`
		if !strings.Contains(content, oldAttr) {
			continue
		}
		content = strings.Replace(content, oldAttr, newAttr, 1)
		if err := afero.WriteFile(e.Fs, path, []byte(content), 0o644); err != nil {
			return updated, fmt.Errorf("rewrite dependency: %w", err)
		}
		updated++
	}
	return updated, nil
}

type mergeConflictError struct{ cause error }

func (e *mergeConflictError) Error() string { return fmt.Sprintf("merge conflict: %v", e.cause) }
func (e *mergeConflictError) Unwrap() error { return e.cause }
