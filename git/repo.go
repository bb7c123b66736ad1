// Package git reads repository facts that recipes and pull requests need:
// the origin remote, the current branch, and the change against a base.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Repo runs git commands against one working directory.
type Repo struct {
	dir     string
	gitPath string
}

// NewRepo creates a Repo rooted at dir.
func NewRepo(dir string) *Repo {
	gitPath := "git"
	if path, err := exec.LookPath("git"); err == nil {
		gitPath = path
	}
	return &Repo{dir: dir, gitPath: gitPath}
}

// Dir returns the working directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Root returns the top-level directory of the repository containing dir.
func (r *Repo) Root(ctx context.Context) (string, error) {
	return r.output(ctx, "rev-parse", "--show-toplevel")
}

// RemoteURL returns the fetch URL of a remote.
func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	if remote == "" {
		remote = "origin"
	}
	url, err := r.output(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("failed to read remote %s: %w", remote, err)
	}
	return url, nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	branch, err := r.output(ctx, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	if branch == "" {
		return "", errors.New("HEAD is detached")
	}
	return branch, nil
}

// CommitsSince returns one-line summaries of commits on HEAD that are not on base.
func (r *Repo) CommitsSince(ctx context.Context, base string) ([]string, error) {
	out, err := r.output(ctx, "log", "--no-merges", "--format=%h %s", base+"..HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to list commits since %s: %w", base, err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// DiffStat returns `git diff --stat` of HEAD against the merge base with base.
func (r *Repo) DiffStat(ctx context.Context, base string) (string, error) {
	out, err := r.output(ctx, "diff", "--stat", base+"...HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to diff against %s: %w", base, err)
	}
	return out, nil
}

// ChangedFiles lists files changed on HEAD since the merge base with base.
func (r *Repo) ChangedFiles(ctx context.Context, base string) ([]string, error) {
	out, err := r.output(ctx, "diff", "--name-only", base+"...HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to list changed files: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Diff returns the patch of HEAD against the merge base with base.
func (r *Repo) Diff(ctx context.Context, base string) (string, error) {
	out, err := r.output(ctx, "diff", base+"...HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to diff against %s: %w", base, err)
	}
	return out, nil
}

// output runs a git command and returns its trimmed stdout.
func (r *Repo) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.gitPath, args...) // #nosec G204 -- args are fixed subcommands
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %s: %w", args[0], msg, err)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
