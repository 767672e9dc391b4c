package models

import "time"

// AIReviewSettings is the per-project auto-merge governance policy.
// Bool columns carry no gorm defaults so explicit false values are persisted.
type AIReviewSettings struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	ProjectID           uint      `gorm:"uniqueIndex;not null" json:"project_id"`
	Enabled             bool      `json:"enabled"`
	ConfidenceThreshold int       `gorm:"not null" json:"confidence_threshold"`
	AutoMergeLow        bool      `json:"auto_merge_low"`
	AutoMergeMedium     bool      `json:"auto_merge_medium"`
	AutoMergeHigh       bool      `json:"auto_merge_high"`
	AutoMergeCritical   bool      `json:"auto_merge_critical"`
	NotifyOnMerge       bool      `json:"notify_on_merge"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (AIReviewSettings) TableName() string { return "ai_review_settings" }

// DefaultAIReviewSettings returns the policy created on first access.
func DefaultAIReviewSettings(projectID uint) AIReviewSettings {
	return AIReviewSettings{
		ProjectID:           projectID,
		Enabled:             true,
		ConfidenceThreshold: 80,
		AutoMergeLow:        true,
		AutoMergeMedium:     true,
		AutoMergeHigh:       true,
		AutoMergeCritical:   false,
		NotifyOnMerge:       true,
	}
}
