package services

import (
	"context"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services/github"
)

// SourceHost is the repository hosting API the fix pipeline and the webhook
// router drive. Expected failures come back as errors.
type SourceHost interface {
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
	CreateBranch(ctx context.Context, owner, repo, branch, base string) (string, error)
	CommitFile(ctx context.Context, owner, repo, branch, path, content, message string) (string, error)
	OpenPullRequest(ctx context.Context, owner, repo string, in github.NewPullRequest) (*github.PullRequest, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error)
	CommentOnPullRequest(ctx context.Context, owner, repo string, number int, body string) error
	MergePullRequest(ctx context.Context, owner, repo string, number int, method, message, sha string) error
	ClosePullRequest(ctx context.Context, owner, repo string, number int) error
	ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]github.CheckRun, error)
	ListComments(ctx context.Context, owner, repo string, number int) ([]github.Comment, error)
	RateLimit(ctx context.Context) (*github.RateLimit, error)
}

var _ SourceHost = (*github.Client)(nil)

// SourceHostFactory returns a host client authenticated with token.
type SourceHostFactory func(token string) (SourceHost, error)

// NewGitHubHostFactory builds go-github clients against cfg.APIBaseURL.
func NewGitHubHostFactory(cfg config.GitHubConfig) SourceHostFactory {
	return func(token string) (SourceHost, error) {
		return github.NewClient(token, cfg.APIBaseURL)
	}
}

// TokenFor prefers the project's own access token over the service token.
func TokenFor(project *models.Project, cfg config.GitHubConfig) string {
	if project != nil && project.AccessToken != "" {
		return project.AccessToken
	}
	return cfg.Token
}
