package models

import "time"

// PRAction is the governance action taken for one review cycle.
type PRAction string

const (
	PRActionPending          PRAction = "pending"
	PRActionMerged           PRAction = "merged"
	PRActionRejected         PRAction = "rejected"
	PRActionChangesRequested PRAction = "changes_requested"
)

// CanTransitionTo reports whether a recorded action may move to another.
// Only a pending merge can still complete.
func (a PRAction) CanTransitionTo(to PRAction) bool {
	return a == PRActionPending && to == PRActionMerged
}

func (a PRAction) IsTerminal() bool {
	return a != PRActionPending
}

// PRReview is the append-only audit row of one webhook-driven review cycle.
type PRReview struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ProjectID        uint       `gorm:"index;not null" json:"project_id"`
	IssueID          string     `gorm:"size:32;index;not null" json:"issue_id"`
	PRNumber         int        `gorm:"index;not null" json:"pr_number"`
	PRURL            string     `gorm:"size:500" json:"pr_url"`
	HeadBranch       string     `gorm:"size:200" json:"head_branch"`
	HeadSHA          string     `gorm:"size:64" json:"head_sha"`
	Action           PRAction   `gorm:"size:30;index;not null" json:"action"`
	Approved         bool       `json:"approved"`
	Confidence       int        `json:"confidence"`
	Recommendation   string     `gorm:"size:30" json:"recommendation"`
	Summary          string     `gorm:"type:text" json:"summary"`
	CodeQualityScore int        `json:"code_quality_score"`
	ReviewResult     string     `gorm:"type:text" json:"review_result"` // normalized verdict JSON
	DiffHash         string     `gorm:"size:64;index" json:"-"`
	FilesChanged     int        `json:"files_changed"`
	Additions        int        `json:"additions"`
	Deletions        int        `json:"deletions"`
	MergeAttempts    int        `json:"merge_attempts"`
	LastError        string     `gorm:"type:text" json:"last_error,omitempty"`
	MergedAt         *time.Time `json:"merged_at"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (PRReview) TableName() string { return "pr_reviews" }
