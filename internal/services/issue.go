package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huangang/codemender/internal/models"
	"gorm.io/gorm"
)

// IssueService is the read/transition side of the issue ledger.
type IssueService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewIssueService(db *gorm.DB) *IssueService {
	return &IssueService{db: db, now: time.Now}
}

type IssueListRequest struct {
	Status   string `form:"status"`
	Severity string `form:"severity"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

type IssueListResponse struct {
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Items    []models.Issue `json:"items"`
}

// severityOrder sorts CRITICAL first.
const severityOrder = `CASE severity WHEN 'CRITICAL' THEN 1 WHEN 'HIGH' THEN 2 WHEN 'MEDIUM' THEN 3 WHEN 'LOW' THEN 4 ELSE 5 END`

// List returns a project's issues ordered by severity, then newest first.
func (s *IssueService) List(ctx context.Context, projectID uint, req *IssueListRequest) (*IssueListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 200 {
		req.PageSize = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Issue{}).Where("project_id = ?", projectID)
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Severity != "" {
		if sev, ok := models.ParseSeverity(req.Severity); ok {
			query = query.Where("severity = ?", sev)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var issues []models.Issue
	if err := query.Order(severityOrder).Order("created_at DESC").
		Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).
		Find(&issues).Error; err != nil {
		return nil, err
	}

	return &IssueListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: issues}, nil
}

// Get loads an issue by full id.
func (s *IssueService) Get(ctx context.Context, id string) (*models.Issue, error) {
	var issue models.Issue
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&issue).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, err
	}
	return &issue, nil
}

// GetByPrefix resolves an id prefix, such as the one embedded in a fix
// branch name, to exactly one issue.
func (s *IssueService) GetByPrefix(ctx context.Context, prefix string) (*models.Issue, error) {
	if prefix == "" {
		return nil, ErrIssueNotFound
	}
	var issues []models.Issue
	if err := s.db.WithContext(ctx).Where("id LIKE ?", prefix+"%").Limit(2).Find(&issues).Error; err != nil {
		return nil, err
	}
	switch len(issues) {
	case 0:
		return nil, ErrIssueNotFound
	case 1:
		return &issues[0], nil
	default:
		return nil, ErrAmbiguousIssuePrefix
	}
}

// Transition moves an issue along the status table. Moving to open clears
// resolution fields; moving to resolved sets them.
func (s *IssueService) Transition(ctx context.Context, id string, to models.IssueStatus, resolvedBy string) (*models.Issue, error) {
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !issue.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, issue.Status, to)
	}

	updates := map[string]interface{}{"status": to}
	switch to {
	case models.IssueResolved, models.IssueFixed:
		now := s.now()
		updates["resolved_at"] = now
		updates["resolved_by"] = resolvedBy
	case models.IssueOpen:
		updates["resolved_at"] = nil
		updates["resolved_by"] = ""
	}

	// Conditional on the status we read so concurrent transitions cannot both win.
	res := s.db.WithContext(ctx).Model(&models.Issue{}).
		Where("id = ? AND status = ?", issue.ID, issue.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: issue %s changed concurrently", ErrInvalidTransition, issue.ShortID())
	}
	return s.Get(ctx, id)
}

// Settle moves an issue to the status a review cycle ended in. An open issue
// passes through in_progress on its way to fixed. Settling to the current
// status is a no-op.
func (s *IssueService) Settle(ctx context.Context, id string, to models.IssueStatus, resolvedBy string) (*models.Issue, error) {
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.Status == to {
		return issue, nil
	}
	if to == models.IssueFixed && issue.Status == models.IssueOpen {
		if _, err := s.Transition(ctx, id, models.IssueInProgress, ""); err != nil {
			return nil, err
		}
	}
	return s.Transition(ctx, id, to, resolvedBy)
}

func (s *IssueService) Ignore(ctx context.Context, id string) (*models.Issue, error) {
	return s.Transition(ctx, id, models.IssueIgnored, "")
}

func (s *IssueService) Reopen(ctx context.Context, id string) (*models.Issue, error) {
	return s.Transition(ctx, id, models.IssueOpen, "")
}

// ActiveSeverities returns the severity of every open or in_progress issue.
func (s *IssueService) ActiveSeverities(ctx context.Context, projectID uint) ([]models.Severity, error) {
	var severities []models.Severity
	err := s.db.WithContext(ctx).Model(&models.Issue{}).
		Where("project_id = ? AND status IN ?", projectID, models.ActiveIssueStatuses).
		Pluck("severity", &severities).Error
	return severities, err
}

// ProjectHealth recomputes the health score from the active issue set.
func (s *IssueService) ProjectHealth(ctx context.Context, projectID uint) (score int, active int, err error) {
	severities, err := s.ActiveSeverities(ctx, projectID)
	if err != nil {
		return 0, 0, err
	}
	return HealthScore(severities...), len(severities), nil
}

// SeverityCounts tallies active issues per severity.
func (s *IssueService) SeverityCounts(ctx context.Context, projectID uint) (map[models.Severity]int64, error) {
	var rows []struct {
		Severity models.Severity
		Count    int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Issue{}).
		Select("severity, COUNT(*) as count").
		Where("project_id = ? AND status IN ?", projectID, models.ActiveIssueStatuses).
		Group("severity").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[models.Severity]int64, len(rows))
	for _, r := range rows {
		counts[r.Severity] = r.Count
	}
	return counts, nil
}
