package recipes

import (
	"context"

	"github.com/madhatter5501/promptflow/git"
)

// RepoInspector reads change facts from a working copy. *git.Repo implements it.
type RepoInspector interface {
	CurrentBranch(ctx context.Context) (string, error)
	CommitsSince(ctx context.Context, base string) ([]string, error)
	DiffStat(ctx context.Context, base string) (string, error)
	ChangedFiles(ctx context.Context, base string) ([]string, error)
	Diff(ctx context.Context, base string) (string, error)
}

// Replaced in tests.
var openRepo = func(dir string) RepoInspector { return git.NewRepo(dir) }

// fillPRContext completes a pull-request context from the working copy.
// Fields set by the caller win; git failures leave fields empty.
func fillPRContext(ctx context.Context, cwd string, pr PRContext) PRContext {
	if cwd == "" {
		return pr
	}
	repo := openRepo(cwd)
	if pr.SourceBranch == "" {
		pr.SourceBranch, _ = repo.CurrentBranch(ctx)
	}
	if pr.TargetBranch == "" {
		return pr
	}
	if len(pr.Commits) == 0 {
		pr.Commits, _ = repo.CommitsSince(ctx, pr.TargetBranch)
	}
	if pr.DiffStat == "" {
		pr.DiffStat, _ = repo.DiffStat(ctx, pr.TargetBranch)
	}
	return pr
}

// fillScan completes a security scan from the working copy.
func fillScan(ctx context.Context, cwd string, scan SecurityScan) SecurityScan {
	if cwd == "" {
		return scan
	}
	repo := openRepo(cwd)
	if scan.Branch == "" {
		scan.Branch, _ = repo.CurrentBranch(ctx)
	}
	if scan.BaseBranch == "" {
		return scan
	}
	if len(scan.ChangedFiles) == 0 {
		scan.ChangedFiles, _ = repo.ChangedFiles(ctx, scan.BaseBranch)
	}
	if scan.Diff == "" {
		scan.Diff, _ = repo.Diff(ctx, scan.BaseBranch)
	}
	return scan
}
