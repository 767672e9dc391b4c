package models

import "time"

// TestRun records one test pass executed for a fix commit.
type TestRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProjectID  uint      `gorm:"index;not null" json:"project_id"`
	IssueID    string    `gorm:"size:32;index" json:"issue_id"`
	CommitSHA  string    `gorm:"size:64;index" json:"commit_sha"`
	Branch     string    `gorm:"size:200" json:"branch"`
	Mode       string    `gorm:"size:20" json:"mode"` // simulated, local
	Framework  string    `gorm:"size:50" json:"framework"`
	Success    bool      `json:"success"`
	Total      int       `json:"total"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	DurationMs int64     `json:"duration_ms"`
	Result     string    `gorm:"type:text" json:"result"` // full result JSON
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (TestRun) TableName() string { return "test_runs" }
