package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
	"gorm.io/gorm"
)

const (
	MaxMergeAttempts = 3
	RetryBatchSize   = 10
)

var (
	errPullRequestClosed = errors.New("pull request was closed without merging")
	errSuperseded        = errors.New("superseded")
)

// MergeRetryService re-attempts merges that the webhook router left pending.
type MergeRetryService struct {
	db     *gorm.DB
	hosts  SourceHostFactory
	issues *IssueService
	ghCfg  config.GitHubConfig
	now    func() time.Time
}

func NewMergeRetryService(db *gorm.DB, hosts SourceHostFactory, ghCfg config.GitHubConfig) *MergeRetryService {
	return &MergeRetryService{
		db:     db,
		hosts:  hosts,
		issues: NewIssueService(db),
		ghCfg:  ghCfg,
		now:    time.Now,
	}
}

// StartMergeRetryScheduler runs ProcessPendingMerges every interval until ctx ends.
func StartMergeRetryScheduler(ctx context.Context, svc *MergeRetryService, interval time.Duration) {
	if interval <= 0 {
		logger.Infof("[Retry] Merge retry disabled")
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := svc.ProcessPendingMerges(ctx); err != nil {
					logger.Warnf("[Retry] %v", err)
				}
			}
		}
	}()
	logger.Infof("[Retry] Scheduler started, interval: %v, max attempts: %d", interval, MaxMergeAttempts)
}

// ProcessPendingMerges retries a batch of pending reviews and returns how
// many were promoted to merged.
func (s *MergeRetryService) ProcessPendingMerges(ctx context.Context) (int, error) {
	var pending []models.PRReview
	err := s.db.WithContext(ctx).
		Where("action = ? AND merge_attempts < ?", models.PRActionPending, MaxMergeAttempts).
		Order("created_at ASC").
		Limit(RetryBatchSize).
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("fetch pending merges: %w", err)
	}

	merged := 0
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.retry(ctx, &pending[i])
		if err != nil {
			logger.Warnf("[Retry] PR #%d: %v", pending[i].PRNumber, err)
			continue
		}
		if ok {
			merged++
		}
	}
	return merged, nil
}

func (s *MergeRetryService) retry(ctx context.Context, row *models.PRReview) (bool, error) {
	attempt := row.MergeAttempts + 1
	logger.Infof("[Retry] Retrying merge of PR #%d (attempt %d/%d)", row.PRNumber, attempt, MaxMergeAttempts)

	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, row.ProjectID).Error; err != nil {
		return false, s.fail(ctx, row, MaxMergeAttempts, fmt.Errorf("project %d: %w", row.ProjectID, err))
	}
	issue, err := s.issues.Get(ctx, row.IssueID)
	if err != nil {
		return false, s.fail(ctx, row, MaxMergeAttempts, err)
	}
	host, err := s.hosts(TokenFor(&project, s.ghCfg))
	if err != nil {
		return false, err
	}

	superseded, err := s.superseded(ctx, row)
	if err != nil {
		return false, err
	}
	if superseded {
		return false, s.fail(ctx, row, MaxMergeAttempts, errSuperseded)
	}

	pr, err := host.GetPullRequest(ctx, project.Owner, project.Repo, row.PRNumber)
	if err != nil {
		return false, s.fail(ctx, row, attempt, err)
	}
	switch {
	case pr.Merged:
		logger.Infof("[Retry] PR #%d was merged outside the retry loop", row.PRNumber)
	case pr.State == "closed":
		return false, s.fail(ctx, row, MaxMergeAttempts, errPullRequestClosed)
	case row.HeadSHA != "" && pr.HeadSHA != row.HeadSHA:
		// Commits landed after the review; the merge would ship unreviewed code.
		return false, s.fail(ctx, row, MaxMergeAttempts, errSuperseded)
	default:
		method := s.ghCfg.MergeMethod
		if method == "" {
			method = "squash"
		}
		if err := host.MergePullRequest(ctx, project.Owner, project.Repo, row.PRNumber, method, MergeCommitMessage(issue, row.Confidence), row.HeadSHA); err != nil {
			return false, s.fail(ctx, row, attempt, err)
		}
	}

	if !row.Action.CanTransitionTo(models.PRActionMerged) {
		return false, fmt.Errorf("review %d is %s", row.ID, row.Action)
	}
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.PRReview{}).
		Where("id = ? AND action = ?", row.ID, models.PRActionPending).
		Updates(map[string]interface{}{
			"action":         models.PRActionMerged,
			"merge_attempts": attempt,
			"merged_at":      now,
			"last_error":     "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if _, err := s.issues.Settle(ctx, issue.ID, models.IssueFixed, models.ResolvedByAutoMerge); err != nil {
		logger.Warnf("[Retry] issue %s not moved to fixed: %v", issue.ShortID(), err)
	}
	RecordReviewAction(models.PRActionMerged)
	PublishLedgerEvent(LedgerEvent{
		Type:      EventMergeRetried,
		ProjectID: row.ProjectID,
		IssueID:   row.IssueID,
		PRNumber:  row.PRNumber,
		Status:    string(models.PRActionMerged),
	})
	logger.Infof("[Retry] PR #%d merged on attempt %d", row.PRNumber, attempt)
	return true, nil
}

// superseded reports whether a later review of the same pull request exists.
func (s *MergeRetryService) superseded(ctx context.Context, row *models.PRReview) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PRReview{}).
		Where("project_id = ? AND pr_number = ? AND id > ?", row.ProjectID, row.PRNumber, row.ID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check newer reviews of PR #%d: %w", row.PRNumber, err)
	}
	return n > 0, nil
}

// fail records a failed attempt. Reaching the attempt cap leaves the row
// pending for a human.
func (s *MergeRetryService) fail(ctx context.Context, row *models.PRReview, attempts int, cause error) error {
	if err := s.db.WithContext(ctx).Model(&models.PRReview{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"merge_attempts": attempts,
			"last_error":     truncate(cause.Error(), 1000),
		}).Error; err != nil {
		logger.Warnf("[Retry] failed to record attempt for review %d: %v", row.ID, err)
	}
	if attempts >= MaxMergeAttempts {
		LogWarning("Retry", "merge_retries_exhausted", fmt.Sprintf("PR #%d: %v", row.PRNumber, cause), nil, "", "", map[string]interface{}{
			"project_id":   row.ProjectID,
			"pr_review_id": row.ID,
		})
	}
	return cause
}
