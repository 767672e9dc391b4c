package services

import (
	"context"
	"errors"
	"time"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	retentionCron       = "30 3 * * *"
	defaultRetentionDay = 30
)

// Scheduler owns the cron jobs: periodic re-analysis and retention cleanup.
type Scheduler struct {
	db       *gorm.DB
	cfg      config.SchedulerConfig
	analysis Analyzer
	logs     *SystemLogService
	usage    *AIUsageService
	cron     *cron.Cron
	now      func() time.Time
}

func NewScheduler(db *gorm.DB, cfg config.SchedulerConfig, analysis Analyzer) *Scheduler {
	return &Scheduler{
		db:       db,
		cfg:      cfg,
		analysis: analysis,
		logs:     NewSystemLogService(db),
		usage:    NewAIUsageService(db),
		cron:     cron.New(),
		now:      time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.cfg.AnalysisCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.AnalysisCron, func() { s.AnalyzeAll(context.Background()) }); err != nil {
			return err
		}
		logger.Infof("[Scheduler] Re-analysis scheduled (cron: %s)", s.cfg.AnalysisCron)
	} else {
		logger.Infof("[Scheduler] Scheduled re-analysis disabled")
	}
	if _, err := s.cron.AddFunc(retentionCron, s.Cleanup); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// AnalyzeAll runs analysis for every project in id order and returns how
// many runs completed. Projects already being analyzed are skipped.
func (s *Scheduler) AnalyzeAll(ctx context.Context) int {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		logger.Errorf("[Scheduler] list projects: %v", err)
		return 0
	}

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res, err := s.analysis.Analyze(ctx, id)
		switch {
		case errors.Is(err, ErrAnalysisInProgress):
			logger.Infof("[Scheduler] project %d already being analyzed, skipped", id)
		case err != nil:
			logger.Warnf("[Scheduler] analysis of project %d failed: %v", id, err)
		default:
			done++
			logger.Infof("[Scheduler] project %d: %s", id, res.Message)
		}
	}
	return done
}

// Cleanup drops system logs and AI usage rows past the retention window.
func (s *Scheduler) Cleanup() {
	days := s.cfg.LogRetentionDays
	if days <= 0 {
		days = defaultRetentionDay
	}
	if n, err := s.logs.CleanupOldLogs(days); err != nil {
		logger.Warnf("[Scheduler] system log cleanup: %v", err)
	} else if n > 0 {
		logger.Infof("[Scheduler] removed %d system logs", n)
	}
	if n, err := s.usage.CleanupBefore(s.now().AddDate(0, 0, -days)); err != nil {
		logger.Warnf("[Scheduler] AI usage cleanup: %v", err)
	} else if n > 0 {
		logger.Infof("[Scheduler] removed %d AI usage rows", n)
	}
}
