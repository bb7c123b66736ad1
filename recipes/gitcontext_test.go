package recipes

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeRepo struct {
	mu     sync.Mutex
	dir    string
	bases  []string
	branch string
	err    error
}

func (f *fakeRepo) record(base string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bases = append(f.bases, base)
}

func (f *fakeRepo) CurrentBranch(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.branch, nil
}

func (f *fakeRepo) CommitsSince(ctx context.Context, base string) ([]string, error) {
	f.record(base)
	if f.err != nil {
		return nil, f.err
	}
	return []string{"abc123 Add login", "def456 Fix typo"}, nil
}

func (f *fakeRepo) DiffStat(ctx context.Context, base string) (string, error) {
	f.record(base)
	if f.err != nil {
		return "", f.err
	}
	return "2 files changed", nil
}

func (f *fakeRepo) ChangedFiles(ctx context.Context, base string) ([]string, error) {
	f.record(base)
	if f.err != nil {
		return nil, f.err
	}
	return []string{"auth.go"}, nil
}

func (f *fakeRepo) Diff(ctx context.Context, base string) (string, error) {
	f.record(base)
	if f.err != nil {
		return "", f.err
	}
	return "+func Login()", nil
}

func useFakeRepo(t *testing.T, repo *fakeRepo) {
	t.Helper()
	prev := openRepo
	openRepo = func(dir string) RepoInspector {
		repo.dir = dir
		return repo
	}
	t.Cleanup(func() { openRepo = prev })
}

func TestBuildContext_PRDescriptionFillsFromGit(t *testing.T) {
	repo := &fakeRepo{branch: "feature/login"}
	useFakeRepo(t, repo)

	r, _ := Lookup(KindPRDescription)
	vars, err := r.BuildContext(context.Background(), "/work/shop", PRDescription{PR: PRContext{TargetBranch: "main"}})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if repo.dir != "/work/shop" {
		t.Errorf("repo dir = %q", repo.dir)
	}
	if vars["PR_SOURCE_BRANCH"] != "feature/login" {
		t.Errorf("PR_SOURCE_BRANCH = %q", vars["PR_SOURCE_BRANCH"])
	}
	if vars["PR_COMMITS"] != "- abc123 Add login\n- def456 Fix typo" {
		t.Errorf("PR_COMMITS = %q", vars["PR_COMMITS"])
	}
	if vars["PR_DIFF_STAT"] != "2 files changed" {
		t.Errorf("PR_DIFF_STAT = %q", vars["PR_DIFF_STAT"])
	}
	for _, base := range repo.bases {
		if base != "main" {
			t.Errorf("diffed against %q, want main", base)
		}
	}
}

func TestBuildContext_CallerValuesWinOverGit(t *testing.T) {
	repo := &fakeRepo{branch: "feature/login"}
	useFakeRepo(t, repo)

	r, _ := Lookup(KindPRDescription)
	vars, err := r.BuildContext(context.Background(), "/work/shop", PRDescription{PR: PRContext{
		SourceBranch: "release",
		TargetBranch: "main",
		Commits:      []string{"given"},
		DiffStat:     "given stat",
	}})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if vars["PR_SOURCE_BRANCH"] != "release" || vars["PR_COMMITS"] != "- given" || vars["PR_DIFF_STAT"] != "given stat" {
		t.Errorf("vars = %v", vars)
	}
	if len(repo.bases) != 0 {
		t.Errorf("git consulted for %v", repo.bases)
	}
}

func TestBuildContext_SecurityReviewFillsFromGit(t *testing.T) {
	repo := &fakeRepo{branch: "feature/login"}
	useFakeRepo(t, repo)

	r, _ := Lookup(KindSecurityReview)
	vars, err := r.BuildContext(context.Background(), "/work/shop", SecurityReview{Scan: SecurityScan{Target: "auth", BaseBranch: "develop"}})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if vars["SCAN_BRANCH"] != "feature/login" || vars["SCAN_CHANGED_FILES"] != "- auth.go" || vars["SCAN_DIFF"] != "+func Login()" {
		t.Errorf("vars = %v", vars)
	}
}

func TestBuildContext_GitFailureLeavesFieldsEmpty(t *testing.T) {
	useFakeRepo(t, &fakeRepo{err: errors.New("not a git repository")})

	r, _ := Lookup(KindSecurityReview)
	vars, err := r.BuildContext(context.Background(), "/work/shop", SecurityReview{Scan: SecurityScan{BaseBranch: "main"}})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if vars["SCAN_BRANCH"] != "" || vars["SCAN_CHANGED_FILES"] != "" || vars["SCAN_DIFF"] != "" {
		t.Errorf("vars = %v", vars)
	}
}
