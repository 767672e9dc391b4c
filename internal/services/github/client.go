// Package github is the source host client used by the auto-fix pipeline and
// the webhook router. It wraps go-github with ETag caching and secondary rate
// limit handling.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"github.com/huangang/codemender/pkg/logger"
)

// ErrNotFound is returned when the repository, file or pull request does not exist.
var ErrNotFound = errors.New("github: not found")

type Client struct {
	gh *gh.Client
}

// NewClient builds a client with the transport stack
// httpcache -> go-github-ratelimit -> go-github. An empty token gives an
// anonymous client. baseURL overrides the API endpoint for GitHub Enterprise.
func NewClient(token, baseURL string) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		if err := setBaseURL(client, baseURL); err != nil {
			return nil, err
		}
	}
	return &Client{gh: client}, nil
}

// NewClientWithHTTPClient is used by tests to point the client at an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)
	if err := setBaseURL(client, baseURL); err != nil {
		return nil, err
	}
	return &Client{gh: client}, nil
}

func setBaseURL(client *gh.Client, baseURL string) error {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u
	return nil
}

type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language"`
	Private       bool   `json:"private"`
}

type PullRequest struct {
	Number  int    `json:"number"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	State   string `json:"state"`
	Head    string `json:"head"`
	HeadSHA string `json:"head_sha"`
	Base    string `json:"base"`
	Merged  bool   `json:"merged"`
}

type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

type CheckRun struct {
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Conclusion string     `json:"conclusion"`
	URL        string     `json:"url"`
	StartedAt  *time.Time `json:"started_at"`
}

type Comment struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	IsBot     bool      `json:"is_bot"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, wrap(err, "getting repository %s/%s", owner, repo)
	}
	logRateLimit(resp, "repos.get")
	return &Repository{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		HTMLURL:       r.GetHTMLURL(),
		DefaultBranch: r.GetDefaultBranch(),
		Language:      r.GetLanguage(),
		Private:       r.GetPrivate(),
	}, nil
}

// GetFileContent returns the decoded content of path at ref.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", wrap(err, "getting %s@%s", path, ref)
	}
	logRateLimit(resp, "repos.contents")
	if file == nil {
		return "", fmt.Errorf("%s is a directory", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return content, nil
}

// CreateBranch creates branch at the head of base and returns the base SHA.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, base string) (string, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, owner, repo, "heads/"+base)
	if err != nil {
		return "", wrap(err, "resolving base branch %s", base)
	}
	sha := ref.GetObject().GetSHA()

	req, err := c.gh.NewRequest(http.MethodPost, fmt.Sprintf("repos/%v/%v/git/refs", owner, repo), map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	})
	if err != nil {
		return "", err
	}
	resp, err := c.gh.Do(ctx, req, nil)
	if err != nil {
		return "", wrap(err, "creating branch %s", branch)
	}
	logRateLimit(resp, "git.refs.create")
	return sha, nil
}

// CommitFile writes content to path on branch, creating or updating the file,
// and returns the commit SHA.
func (c *Client) CommitFile(ctx context.Context, owner, repo, branch, path, content, message string) (string, error) {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: []byte(content),
		Branch:  gh.Ptr(branch),
	}

	existing, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &gh.RepositoryContentGetOptions{Ref: branch})
	var result *gh.RepositoryContentResponse
	var resp *gh.Response
	switch {
	case err == nil && existing != nil:
		opts.SHA = gh.Ptr(existing.GetSHA())
		result, resp, err = c.gh.Repositories.UpdateFile(ctx, owner, repo, path, opts)
	case err == nil || isNotFound(err):
		result, resp, err = c.gh.Repositories.CreateFile(ctx, owner, repo, path, opts)
	}
	if err != nil {
		return "", wrap(err, "committing %s to %s", path, branch)
	}
	logRateLimit(resp, "repos.contents.put")
	return result.Commit.GetSHA(), nil
}

func (c *Client) OpenPullRequest(ctx context.Context, owner, repo string, in NewPullRequest) (*PullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title: gh.Ptr(in.Title),
		Body:  gh.Ptr(in.Body),
		Head:  gh.Ptr(in.Head),
		Base:  gh.Ptr(in.Base),
	})
	if err != nil {
		return nil, wrap(err, "opening pull request %s -> %s", in.Head, in.Base)
	}
	logRateLimit(resp, "pulls.create")
	return mapPullRequest(pr), nil
}

func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, wrap(err, "getting pull request #%d", number)
	}
	logRateLimit(resp, "pulls.get")
	return mapPullRequest(pr), nil
}

// GetPullRequestDiff returns the unified diff of a pull request.
func (c *Client) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, resp, err := c.gh.PullRequests.GetRaw(ctx, owner, repo, number, gh.RawOptions{Type: gh.Diff})
	if err != nil {
		return "", wrap(err, "getting diff of #%d", number)
	}
	logRateLimit(resp, "pulls.diff")
	return diff, nil
}

func (c *Client) CommentOnPullRequest(ctx context.Context, owner, repo string, number int, body string) error {
	_, resp, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{Body: gh.Ptr(body)})
	if err != nil {
		return wrap(err, "commenting on #%d", number)
	}
	logRateLimit(resp, "issues.comments.create")
	return nil
}

// MergePullRequest merges with method merge, squash or rebase. A non-empty
// sha makes GitHub refuse the merge if the head has moved since review.
func (c *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, method, message, sha string) error {
	result, resp, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, message, &gh.PullRequestOptions{MergeMethod: method, SHA: sha})
	if err != nil {
		return wrap(err, "merging #%d", number)
	}
	logRateLimit(resp, "pulls.merge")
	if !result.GetMerged() {
		return fmt.Errorf("merging #%d: %s", number, result.GetMessage())
	}
	return nil
}

func (c *Client) ClosePullRequest(ctx context.Context, owner, repo string, number int) error {
	_, resp, err := c.gh.PullRequests.Edit(ctx, owner, repo, number, &gh.PullRequest{State: gh.Ptr("closed")})
	if err != nil {
		return wrap(err, "closing #%d", number)
	}
	logRateLimit(resp, "pulls.edit")
	return nil
}

func (c *Client) ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]CheckRun, error) {
	result, resp, err := c.gh.Checks.ListCheckRunsForRef(ctx, owner, repo, ref, &gh.ListCheckRunsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, wrap(err, "listing check runs for %s", ref)
	}
	logRateLimit(resp, "checks.list")

	runs := make([]CheckRun, 0, len(result.CheckRuns))
	for _, cr := range result.CheckRuns {
		run := CheckRun{
			Name:       cr.GetName(),
			Status:     cr.GetStatus(),
			Conclusion: cr.GetConclusion(),
			URL:        cr.GetHTMLURL(),
		}
		if cr.StartedAt != nil {
			t := cr.StartedAt.Time
			run.StartedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (c *Client) ListComments(ctx context.Context, owner, repo string, number int) ([]Comment, error) {
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	var all []Comment
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, wrap(err, "listing comments of #%d", number)
		}
		logRateLimit(resp, "issues.comments.list")
		for _, cm := range comments {
			login := cm.GetUser().GetLogin()
			all = append(all, Comment{
				ID:        cm.GetID(),
				Author:    login,
				IsBot:     cm.GetUser().GetType() == "Bot" || strings.HasSuffix(login, "[bot]"),
				Body:      cm.GetBody(),
				CreatedAt: cm.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	if all == nil {
		all = []Comment{}
	}
	return all, nil
}

// RateLimit returns the core REST quota.
func (c *Client) RateLimit(ctx context.Context) (*RateLimit, error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return nil, wrap(err, "getting rate limit")
	}
	core := limits.GetCore()
	if core == nil {
		return nil, errors.New("rate limit response has no core quota")
	}
	return &RateLimit{Limit: core.Limit, Remaining: core.Remaining, Reset: core.Reset.Time}, nil
}

func mapPullRequest(pr *gh.PullRequest) *PullRequest {
	return &PullRequest{
		Number:  pr.GetNumber(),
		URL:     pr.GetHTMLURL(),
		Title:   pr.GetTitle(),
		State:   pr.GetState(),
		Head:    pr.GetHead().GetRef(),
		HeadSHA: pr.GetHead().GetSHA(),
		Base:    pr.GetBase().GetRef(),
		Merged:  pr.GetMerged(),
	}
}

func isNotFound(err error) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

func wrap(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil {
		return
	}
	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		logger.Warnf("[GitHub] rate limit low after %s: %d/%d remaining, resets in %s",
			endpoint, resp.Rate.Remaining, resp.Rate.Limit, time.Until(resp.Rate.Reset.Time).Round(time.Second))
	}
}

// ParseRepoURL extracts owner and repo from a github.com URL. It accepts
// https, ssh (git@github.com:owner/repo) and trailing .git forms.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")

	switch {
	case strings.HasPrefix(s, "git@github.com:"):
		s = strings.TrimPrefix(s, "git@github.com:")
	default:
		u, perr := url.Parse(s)
		if perr != nil || u.Host == "" {
			return "", "", fmt.Errorf("invalid GitHub repository URL: %q", raw)
		}
		if !strings.EqualFold(u.Host, "github.com") && !strings.EqualFold(u.Host, "www.github.com") {
			return "", "", fmt.Errorf("not a github.com URL: %q", raw)
		}
		s = strings.TrimPrefix(u.Path, "/")
	}

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub repository URL: %q", raw)
	}
	return parts[0], parts[1], nil
}

// FormatTimeUntilReset renders a duration as "N minutes" or "H hour(s) M minutes".
func FormatTimeUntilReset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Round(time.Minute).Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := minutes / 60
	minutes %= 60
	unit := "hour"
	if hours > 1 {
		unit = "hours"
	}
	return fmt.Sprintf("%d %s %d minutes", hours, unit, minutes)
}
