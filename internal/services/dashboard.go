package services

import (
	"context"
	"time"

	"github.com/huangang/codemender/internal/models"
	"gorm.io/gorm"
)

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

// SeverityCounts counts active issues per severity.
type SeverityCounts struct {
	Critical int64 `json:"critical"`
	High     int64 `json:"high"`
	Medium   int64 `json:"medium"`
	Low      int64 `json:"low"`
	Info     int64 `json:"info"`
}

func (c *SeverityCounts) add(sev models.Severity, n int64) {
	switch sev {
	case models.SeverityCritical:
		c.Critical += n
	case models.SeverityHigh:
		c.High += n
	case models.SeverityMedium:
		c.Medium += n
	case models.SeverityLow:
		c.Low += n
	case models.SeverityInfo:
		c.Info += n
	}
}

func (c SeverityCounts) Total() int64 {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// PROutcomes counts audit rows per governance action.
type PROutcomes struct {
	Merged           int64 `json:"merged"`
	Pending          int64 `json:"pending"`
	Rejected         int64 `json:"rejected"`
	ChangesRequested int64 `json:"changes_requested"`
}

func (o *PROutcomes) add(action models.PRAction, n int64) {
	switch action {
	case models.PRActionMerged:
		o.Merged += n
	case models.PRActionPending:
		o.Pending += n
	case models.PRActionRejected:
		o.Rejected += n
	case models.PRActionChangesRequested:
		o.ChangesRequested += n
	}
}

type ProjectHealth struct {
	ProjectID      uint           `json:"project_id"`
	ProjectName    string         `json:"project_name"`
	HealthScore    int            `json:"health_score"`
	ActiveIssues   SeverityCounts `json:"active_issues"`
	PROutcomes     PROutcomes     `json:"pr_outcomes"`
	LastAnalyzedAt *time.Time     `json:"last_analyzed_at"`
}

type DashboardResponse struct {
	Projects      []ProjectHealth `json:"projects"`
	ActiveIssues  SeverityCounts  `json:"active_issues"`
	PROutcomes    PROutcomes      `json:"pr_outcomes"`
	AverageHealth float64         `json:"average_health"`
}

// GetStats summarizes the projects visible to the user; admins see all.
func (s *DashboardService) GetStats(ctx context.Context, userID uint, isAdmin bool) (*DashboardResponse, error) {
	db := s.db.WithContext(ctx)

	var projects []models.Project
	q := db.Order("id ASC")
	if !isAdmin {
		q = q.Where("created_by = ?", userID)
	}
	if err := q.Find(&projects).Error; err != nil {
		return nil, err
	}

	resp := &DashboardResponse{Projects: make([]ProjectHealth, 0, len(projects))}
	if len(projects) == 0 {
		return resp, nil
	}

	ids := make([]uint, len(projects))
	byID := make(map[uint]*ProjectHealth, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
		resp.Projects = append(resp.Projects, ProjectHealth{
			ProjectID:      p.ID,
			ProjectName:    p.Name,
			HealthScore:    p.HealthScore,
			LastAnalyzedAt: p.LastAnalyzedAt,
		})
	}
	for i := range resp.Projects {
		byID[resp.Projects[i].ProjectID] = &resp.Projects[i]
	}

	var sevRows []struct {
		ProjectID uint
		Severity  models.Severity
		Count     int64
	}
	if err := db.Model(&models.Issue{}).
		Select("project_id, severity, COUNT(*) as count").
		Where("project_id IN ? AND status IN ?", ids, models.ActiveIssueStatuses).
		Group("project_id, severity").
		Scan(&sevRows).Error; err != nil {
		return nil, err
	}
	for _, r := range sevRows {
		byID[r.ProjectID].ActiveIssues.add(r.Severity, r.Count)
		resp.ActiveIssues.add(r.Severity, r.Count)
	}

	var prRows []struct {
		ProjectID uint
		Action    models.PRAction
		Count     int64
	}
	if err := db.Model(&models.PRReview{}).
		Select("project_id, action, COUNT(*) as count").
		Where("project_id IN ?", ids).
		Group("project_id, action").
		Scan(&prRows).Error; err != nil {
		return nil, err
	}
	for _, r := range prRows {
		byID[r.ProjectID].PROutcomes.add(r.Action, r.Count)
		resp.PROutcomes.add(r.Action, r.Count)
	}

	var sum int
	for _, p := range resp.Projects {
		sum += p.HealthScore
	}
	resp.AverageHealth = float64(sum) / float64(len(resp.Projects))
	return resp, nil
}
