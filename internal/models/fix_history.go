package models

import "time"

const (
	FixStatusSuccess = "success"
	FixStatusFailed  = "failed"
)

// FixHistory is appended once per auto-fix attempt.
type FixHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	IssueID      string    `gorm:"size:32;index;not null" json:"issue_id"`
	ProjectID    uint      `gorm:"index;not null" json:"project_id"`
	Status       string    `gorm:"size:20;not null" json:"status"`
	BranchName   string    `gorm:"size:200" json:"branch_name"`
	CommitSHA    string    `gorm:"size:64" json:"commit_sha"`
	PRNumber     int       `json:"pr_number"`
	PRURL        string    `gorm:"size:500" json:"pr_url"`
	Explanation  string    `gorm:"type:text" json:"explanation"`
	Changes      string    `gorm:"type:text" json:"changes"` // JSON array
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	TriggeredBy  *uint     `json:"triggered_by"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (FixHistory) TableName() string { return "fix_history" }
