package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/huangang/codemender/internal/models"
	"gorm.io/gorm"
)

var ErrInvalidThreshold = errors.New("confidence_threshold must be between 0 and 100")

type ReviewSettingsService struct {
	db *gorm.DB
}

func NewReviewSettingsService(db *gorm.DB) *ReviewSettingsService {
	return &ReviewSettingsService{db: db}
}

// UpdateReviewSettingsRequest is a partial update; nil fields are kept.
type UpdateReviewSettingsRequest struct {
	Enabled             *bool `json:"enabled"`
	ConfidenceThreshold *int  `json:"confidence_threshold"`
	AutoMergeLow        *bool `json:"auto_merge_low"`
	AutoMergeMedium     *bool `json:"auto_merge_medium"`
	AutoMergeHigh       *bool `json:"auto_merge_high"`
	AutoMergeCritical   *bool `json:"auto_merge_critical"`
	NotifyOnMerge       *bool `json:"notify_on_merge"`
}

// Get returns the project's settings, creating the defaults on first access.
func (s *ReviewSettingsService) Get(ctx context.Context, projectID uint) (*models.AIReviewSettings, error) {
	var settings models.AIReviewSettings
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = models.DefaultAIReviewSettings(projectID)
	if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
		// Lost a create race; read the winner.
		if e := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&settings).Error; e != nil {
			return nil, fmt.Errorf("create review settings: %w", err)
		}
	}
	return &settings, nil
}

func (s *ReviewSettingsService) Update(ctx context.Context, projectID uint, req *UpdateReviewSettingsRequest) (*models.AIReviewSettings, error) {
	if req.ConfidenceThreshold != nil && (*req.ConfidenceThreshold < 0 || *req.ConfidenceThreshold > 100) {
		return nil, ErrInvalidThreshold
	}

	settings, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.ConfidenceThreshold != nil {
		updates["confidence_threshold"] = *req.ConfidenceThreshold
	}
	if req.AutoMergeLow != nil {
		updates["auto_merge_low"] = *req.AutoMergeLow
	}
	if req.AutoMergeMedium != nil {
		updates["auto_merge_medium"] = *req.AutoMergeMedium
	}
	if req.AutoMergeHigh != nil {
		updates["auto_merge_high"] = *req.AutoMergeHigh
	}
	if req.AutoMergeCritical != nil {
		updates["auto_merge_critical"] = *req.AutoMergeCritical
	}
	if req.NotifyOnMerge != nil {
		updates["notify_on_merge"] = *req.NotifyOnMerge
	}
	if len(updates) == 0 {
		return settings, nil
	}

	if err := s.db.WithContext(ctx).Model(settings).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, projectID)
}
