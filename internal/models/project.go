package models

import (
	"time"

	"gorm.io/gorm"
)

// Project represents one tracked GitHub repository
type Project struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"size:200;not null" json:"name"`
	Owner          string         `gorm:"size:200;not null;index:idx_project_repo" json:"owner"`
	Repo           string         `gorm:"size:200;not null;index:idx_project_repo" json:"repo"`
	URL            string         `gorm:"size:500;not null" json:"url"`
	Branch         string         `gorm:"size:200;not null" json:"branch"` // default branch
	Language       string         `gorm:"size:50" json:"language"`
	Framework      string         `gorm:"size:50" json:"framework"`
	HealthScore    int            `json:"health_score"`
	LastAnalyzedAt *time.Time     `json:"last_analyzed_at"`
	LocalPath      string         `gorm:"size:500" json:"-"`
	LastPulledAt   *time.Time     `json:"last_pulled_at"`
	LastCommitSHA  string         `gorm:"size:64" json:"last_commit_sha"` // HEAD of the last analyzed snapshot
	AccessToken    string         `gorm:"size:500" json:"-"`
	LLMConfigID    *uint          `gorm:"column:llm_config_id" json:"llm_config_id"`
	IMEnabled      bool           `json:"im_enabled"`
	IMBotID        *uint          `json:"im_bot_id"`
	CreatedBy      uint           `gorm:"index" json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Project) TableName() string { return "projects" }

// FullName returns owner/repo.
func (p *Project) FullName() string {
	return p.Owner + "/" + p.Repo
}
