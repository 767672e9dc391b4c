package services

import (
	"context"
	"fmt"

	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
	"gorm.io/gorm"
)

// MergeNotification describes an AI fix pull request that was merged.
type MergeNotification struct {
	ProjectName string
	IssueTitle  string
	Severity    models.Severity
	FilePath    string
	PRNumber    int
	PRURL       string
	Confidence  int
	Summary     string
}

type NotificationService struct {
	db       *gorm.DB
	adapters func(botType string) NotificationAdapter
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db, adapters: getAdapter}
}

// SendMergeNotification delivers n to the project's IM bot. It is a no-op
// when the project has no active bot.
func (s *NotificationService) SendMergeNotification(ctx context.Context, project *models.Project, n *MergeNotification) error {
	if !project.IMEnabled || project.IMBotID == nil {
		logger.Infof("[Notification] IM notification disabled for project %d", project.ID)
		return nil
	}

	var bot models.IMBot
	if err := s.db.WithContext(ctx).First(&bot, *project.IMBotID).Error; err != nil {
		return fmt.Errorf("IM bot not found: %w", err)
	}
	if !bot.IsActive {
		logger.Infof("[Notification] IM bot %d is not active", bot.ID)
		return nil
	}

	logger.Infof("[Notification] Sending merge notification to bot %s (type: %s)", bot.Name, bot.Type)
	if err := s.adapters(bot.Type).Send(ctx, &bot, n); err != nil {
		logger.Warnf("[Notification] Failed to send notification: %v", err)
		return err
	}
	return nil
}
