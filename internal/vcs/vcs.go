// Package vcs wraps the git operations the deployment pipeline needs.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// ErrNothingToCommit is returned by CommitAll when the tree has no changes.
var ErrNothingToCommit = errors.New("nothing to commit")

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.CommandContext.
type ExecGit struct{}

func (g *ExecGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Repo runs git in one working tree.
type Repo struct {
	git    GitRunner
	dir    string
	trunk  string
	remote string
}

// NewRepo creates a Repo for dir. An empty trunk defaults to main.
func NewRepo(git GitRunner, dir, trunk string) *Repo {
	if trunk == "" {
		trunk = "main"
	}
	return &Repo{git: git, dir: dir, trunk: trunk, remote: "origin"}
}

// Dir returns the working tree root.
func (r *Repo) Dir() string { return r.dir }

// Trunk returns the trunk branch name.
func (r *Repo) Trunk() string { return r.trunk }

// Status returns the porcelain status lines; an empty slice means clean.
func (r *Repo) Status(ctx context.Context) ([]string, error) {
	out, err := r.git.Run(ctx, r.dir, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CurrentBranch returns the checked-out branch.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.git.Run(ctx, r.dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return out, nil
}

// CreateBranch creates and checks out a new branch from the current HEAD.
func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	if err := validBranch(name); err != nil {
		return err
	}
	if _, err := r.git.Run(ctx, r.dir, "checkout", "-b", name); err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(ctx context.Context, name string) error {
	if err := validBranch(name); err != nil {
		return err
	}
	if _, err := r.git.Run(ctx, r.dir, "checkout", name); err != nil {
		return fmt.Errorf("checkout %q: %w", name, err)
	}
	return nil
}

// CommitAll stages every change and commits it. Returns the new HEAD sha.
func (r *Repo) CommitAll(ctx context.Context, message string) (string, error) {
	if _, err := r.git.Run(ctx, r.dir, "add", "-A"); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}
	out, err := r.git.Run(ctx, r.dir, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") {
			return "", ErrNothingToCommit
		}
		return "", fmt.Errorf("commit: %w", err)
	}
	sha, err := r.git.Run(ctx, r.dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	return sha, nil
}

// Push pushes a branch to the remote and sets its upstream.
func (r *Repo) Push(ctx context.Context, branch string) error {
	if err := validBranch(branch); err != nil {
		return err
	}
	if _, err := r.git.Run(ctx, r.dir, "push", "-u", r.remote, branch); err != nil {
		return fmt.Errorf("push branch: %w", err)
	}
	return nil
}

// Merge merges branch into trunk with a merge commit and pushes trunk.
func (r *Repo) Merge(ctx context.Context, branch, message string) error {
	if err := validBranch(branch); err != nil {
		return err
	}
	if err := r.Checkout(ctx, r.trunk); err != nil {
		return err
	}
	if _, err := r.git.Run(ctx, r.dir, "pull", r.remote, r.trunk); err != nil {
		return fmt.Errorf("pull %s: %w", r.trunk, err)
	}
	if _, err := r.git.Run(ctx, r.dir, "merge", "--no-ff", branch, "-m", message); err != nil {
		return fmt.Errorf("merge %q: %w", branch, err)
	}
	if _, err := r.git.Run(ctx, r.dir, "push", r.remote, r.trunk); err != nil {
		return fmt.Errorf("push %s: %w", r.trunk, err)
	}
	return nil
}

// DeleteBranch force-deletes a local branch and, if remote is set, its
// remote counterpart. The trunk is never deleted.
func (r *Repo) DeleteBranch(ctx context.Context, name string, remote bool) error {
	if err := validBranch(name); err != nil {
		return err
	}
	if name == r.trunk || name == "main" || name == "master" {
		return fmt.Errorf("refusing to delete protected branch %q", name)
	}
	if _, err := r.git.Run(ctx, r.dir, "branch", "-D", name); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	if remote {
		if _, err := r.git.Run(ctx, r.dir, "push", r.remote, "--delete", name); err != nil {
			return fmt.Errorf("delete remote branch %q: %w", name, err)
		}
	}
	return nil
}

func validBranch(name string) error {
	if name == "" {
		return fmt.Errorf("branch name must not be empty")
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", name)
	}
	return nil
}

// BranchName returns the deployment branch for an API version.
func BranchName(version string, now time.Time) string {
	return sanitizeBranch(fmt.Sprintf("auto-deploy-%s-%d", version, now.Unix()))
}

var (
	nonAlphaNum = regexp.MustCompile(`[^a-zA-Z0-9/_.-]+`)
	dashRun     = regexp.MustCompile(`-{2,}`)
)

// sanitizeBranch cleans up a branch name.
func sanitizeBranch(name string) string {
	s := nonAlphaNum.ReplaceAllString(name, "-")
	s = dashRun.ReplaceAllString(s, "-")
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	s = strings.Trim(s, "-.")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// LookPathFunc resolves an executable on PATH.
type LookPathFunc func(string) (string, error)

// MissingTools returns the tools that lookPath cannot resolve, in order.
func MissingTools(lookPath LookPathFunc, tools ...string) []string {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var missing []string
	seen := map[string]bool{}
	for _, t := range tools {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if _, err := lookPath(t); err != nil {
			missing = append(missing, t)
		}
	}
	return missing
}
