package services

import (
	"context"
	"fmt"
	"time"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services/github"
	"gorm.io/gorm"
)

// PRStatusService serves the read side of the PR lifecycle: audit rows,
// recorded test runs, live CI state and API quota.
type PRStatusService struct {
	db    *gorm.DB
	hosts SourceHostFactory
	ghCfg config.GitHubConfig
	now   func() time.Time
}

func NewPRStatusService(db *gorm.DB, hosts SourceHostFactory, ghCfg config.GitHubConfig) *PRStatusService {
	return &PRStatusService{db: db, hosts: hosts, ghCfg: ghCfg, now: time.Now}
}

type PageRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

func (r *PageRequest) normalize() {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.PageSize <= 0 || r.PageSize > 100 {
		r.PageSize = 20
	}
}

type PRReviewListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.PRReview `json:"items"`
}

type TestRunListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.TestRun `json:"items"`
}

// ListReviews returns a project's audit rows, newest first.
func (s *PRStatusService) ListReviews(ctx context.Context, projectID uint, req *PageRequest) (*PRReviewListResponse, error) {
	req.normalize()
	q := s.db.WithContext(ctx).Model(&models.PRReview{}).Where("project_id = ?", projectID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var rows []models.PRReview
	if err := q.Order("created_at DESC, id DESC").Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).Find(&rows).Error; err != nil {
		return nil, err
	}
	return &PRReviewListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: rows}, nil
}

func (s *PRStatusService) ListTestRuns(ctx context.Context, projectID uint, req *PageRequest) (*TestRunListResponse, error) {
	req.normalize()
	q := s.db.WithContext(ctx).Model(&models.TestRun{}).Where("project_id = ?", projectID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var rows []models.TestRun
	if err := q.Order("created_at DESC, id DESC").Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).Find(&rows).Error; err != nil {
		return nil, err
	}
	return &TestRunListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: rows}, nil
}

type RateLimitStatus struct {
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	Reset       time.Time `json:"reset"`
	PercentUsed float64   `json:"percent_used"`
	ResetsIn    string    `json:"resets_in"`
}

// RateLimit reports the core API quota of the service token.
func (s *PRStatusService) RateLimit(ctx context.Context) (*RateLimitStatus, error) {
	host, err := s.hosts(s.ghCfg.Token)
	if err != nil {
		return nil, err
	}
	rl, err := host.RateLimit(ctx)
	if err != nil {
		return nil, err
	}

	out := &RateLimitStatus{
		Limit:     rl.Limit,
		Remaining: rl.Remaining,
		Reset:     rl.Reset,
		ResetsIn:  github.FormatTimeUntilReset(rl.Reset.Sub(s.now())),
	}
	if rl.Limit > 0 {
		used := float64(rl.Limit-rl.Remaining) / float64(rl.Limit) * 100
		out.PercentUsed = float64(int(used*10+0.5)) / 10
	}
	return out, nil
}

type PRCIStatus struct {
	PRNumber  int               `json:"pr_number"`
	State     string            `json:"state"`
	Merged    bool              `json:"merged"`
	HeadSHA   string            `json:"head_sha"`
	Checks    []github.CheckRun `json:"checks"`
	Comments  []github.Comment  `json:"comments"`
	AllPassed bool              `json:"all_passed"`
}

// CIStatus collects check runs for the PR head and its comments.
func (s *PRStatusService) CIStatus(ctx context.Context, project *models.Project, number int) (*PRCIStatus, error) {
	host, err := s.hosts(TokenFor(project, s.ghCfg))
	if err != nil {
		return nil, err
	}
	pr, err := host.GetPullRequest(ctx, project.Owner, project.Repo, number)
	if err != nil {
		return nil, fmt.Errorf("get PR #%d: %w", number, err)
	}
	checks, err := host.ListCheckRuns(ctx, project.Owner, project.Repo, pr.HeadSHA)
	if err != nil {
		return nil, fmt.Errorf("list checks for %s: %w", shortSHA(pr.HeadSHA), err)
	}
	comments, err := host.ListComments(ctx, project.Owner, project.Repo, number)
	if err != nil {
		return nil, fmt.Errorf("list comments on PR #%d: %w", number, err)
	}

	out := &PRCIStatus{
		PRNumber:  number,
		State:     pr.State,
		Merged:    pr.Merged,
		HeadSHA:   pr.HeadSHA,
		Checks:    checks,
		Comments:  comments,
		AllPassed: len(checks) > 0,
	}
	if out.Checks == nil {
		out.Checks = []github.CheckRun{}
	}
	if out.Comments == nil {
		out.Comments = []github.Comment{}
	}
	for _, c := range checks {
		if c.Status != "completed" || (c.Conclusion != "success" && c.Conclusion != "skipped" && c.Conclusion != "neutral") {
			out.AllPassed = false
			break
		}
	}
	return out, nil
}
