package services

import (
	"time"

	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
	"gorm.io/gorm"
)

// AIUsageService manages AI usage tracking and statistics.
type AIUsageService struct {
	db *gorm.DB
}

func NewAIUsageService(db *gorm.DB) *AIUsageService {
	return &AIUsageService{db: db}
}

// Record saves a usage log entry asynchronously.
func (s *AIUsageService) Record(log *models.AIUsageLog) {
	go func() {
		if err := s.db.Create(log).Error; err != nil {
			logger.Warnf("[AIUsage] Failed to record usage: %v", err)
		}
	}()
}

// PurposeUsage aggregates calls for one purpose (analyze, fix, review).
type PurposeUsage struct {
	Purpose      string  `json:"purpose"`
	Calls        int64   `json:"calls"`
	TotalTokens  int64   `json:"total_tokens"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	FailureCount int64   `json:"failure_count"`
}

// GetUsageByPurpose returns usage since the given time, optionally for one project.
func (s *AIUsageService) GetUsageByPurpose(since time.Time, projectID *uint) ([]PurposeUsage, error) {
	query := s.db.Model(&models.AIUsageLog{}).Where("created_at >= ?", since)
	if projectID != nil && *projectID > 0 {
		query = query.Where("project_id = ?", *projectID)
	}

	var results []PurposeUsage
	err := query.Select(
		"purpose, " +
			"COUNT(*) as calls, " +
			"COALESCE(SUM(total_tokens), 0) as total_tokens, " +
			"COALESCE(AVG(latency_ms), 0) as avg_latency_ms, " +
			"COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) as failure_count",
	).Group("purpose").Order("calls DESC").Scan(&results).Error
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []PurposeUsage{}
	}
	return results, nil
}

// CleanupBefore deletes usage logs older than the given time.
func (s *AIUsageService) CleanupBefore(before time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", before).Delete(&models.AIUsageLog{})
	return result.RowsAffected, result.Error
}
