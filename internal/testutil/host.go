package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/huangang/codemender/internal/services/github"
)

// FakeHost is an in-memory source host. Set the *Err fields to make the
// matching call fail.
type FakeHost struct {
	mu sync.Mutex

	Files    map[string]string // "ref:path" -> content
	Diff     string
	PR       *github.PullRequest
	Checks   []github.CheckRun
	Comments []github.Comment
	Limit    github.RateLimit

	RepoErr, FetchErr, BranchErr, CommitErr, OpenErr, DiffErr, CommentErr, MergeErr, CloseErr error

	Branches  []string
	Commits   []FakeCommit
	Opened    []github.NewPullRequest
	Posted    []string
	Merged    []int
	MergeWith []string
	MergeSHAs []string
	Closed    []int
}

type FakeCommit struct {
	Branch, Path, Content, Message string
}

func NewFakeHost() *FakeHost {
	return &FakeHost{
		Files: map[string]string{},
		Limit: github.RateLimit{Limit: 5000, Remaining: 4999, Reset: time.Now().Add(30 * time.Minute)},
	}
}

func (f *FakeHost) GetRepository(_ context.Context, owner, repo string) (*github.Repository, error) {
	if f.RepoErr != nil {
		return nil, f.RepoErr
	}
	return &github.Repository{
		Owner:         owner,
		Name:          repo,
		FullName:      owner + "/" + repo,
		HTMLURL:       "https://github.com/" + owner + "/" + repo,
		DefaultBranch: "main",
		Language:      "Go",
	}, nil
}

func (f *FakeHost) GetFileContent(_ context.Context, _, _, path, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return "", f.FetchErr
	}
	content, ok := f.Files[ref+":"+path]
	if !ok {
		return "", fmt.Errorf("%s@%s: %w", path, ref, github.ErrNotFound)
	}
	return content, nil
}

func (f *FakeHost) CreateBranch(_ context.Context, _, _, branch, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BranchErr != nil {
		return "", f.BranchErr
	}
	f.Branches = append(f.Branches, branch)
	return "basesha", nil
}

func (f *FakeHost) CommitFile(_ context.Context, _, _, branch, path, content, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommitErr != nil {
		return "", f.CommitErr
	}
	f.Commits = append(f.Commits, FakeCommit{Branch: branch, Path: path, Content: content, Message: message})
	f.Files[branch+":"+path] = content
	return fmt.Sprintf("commit%d", len(f.Commits)), nil
}

func (f *FakeHost) OpenPullRequest(_ context.Context, owner, repo string, in github.NewPullRequest) (*github.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.Opened = append(f.Opened, in)
	n := 100 + len(f.Opened)
	return &github.PullRequest{
		Number: n,
		URL:    fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, n),
		Title:  in.Title,
		State:  "open",
		Head:   in.Head,
		Base:   in.Base,
	}, nil
}

func (f *FakeHost) GetPullRequest(_ context.Context, _, _ string, number int) (*github.PullRequest, error) {
	if f.PR != nil {
		return f.PR, nil
	}
	return &github.PullRequest{Number: number, State: "open", HeadSHA: "headsha"}, nil
}

func (f *FakeHost) GetPullRequestDiff(_ context.Context, _, _ string, _ int) (string, error) {
	if f.DiffErr != nil {
		return "", f.DiffErr
	}
	return f.Diff, nil
}

func (f *FakeHost) CommentOnPullRequest(_ context.Context, _, _ string, _ int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommentErr != nil {
		return f.CommentErr
	}
	f.Posted = append(f.Posted, body)
	return nil
}

func (f *FakeHost) MergePullRequest(_ context.Context, _, _ string, number int, method, _, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MergeErr != nil {
		return f.MergeErr
	}
	f.Merged = append(f.Merged, number)
	f.MergeWith = append(f.MergeWith, method)
	f.MergeSHAs = append(f.MergeSHAs, sha)
	return nil
}

func (f *FakeHost) ClosePullRequest(_ context.Context, _, _ string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CloseErr != nil {
		return f.CloseErr
	}
	f.Closed = append(f.Closed, number)
	return nil
}

func (f *FakeHost) ListCheckRuns(_ context.Context, _, _, _ string) ([]github.CheckRun, error) {
	return f.Checks, nil
}

func (f *FakeHost) ListComments(_ context.Context, _, _ string, _ int) ([]github.Comment, error) {
	return f.Comments, nil
}

func (f *FakeHost) RateLimit(_ context.Context) (*github.RateLimit, error) {
	l := f.Limit
	return &l, nil
}
