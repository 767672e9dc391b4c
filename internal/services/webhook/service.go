package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/pkg/logger"
	"gorm.io/gorm"
)

// MergeNotifier announces merged fixes.
type MergeNotifier interface {
	SendMergeNotification(ctx context.Context, project *models.Project, n *services.MergeNotification) error
}

// Router runs one AI review cycle per fix pull request event: review the
// diff, apply the auto-merge policy, act on the PR and record the outcome.
type Router struct {
	db       *gorm.DB
	hosts    services.SourceHostFactory
	reviewer services.ReviewEvaluator
	notifier MergeNotifier
	issues   *services.IssueService
	settings *services.ReviewSettingsService
	verdicts *services.VerdictCache
	ghCfg    config.GitHubConfig
	now      func() time.Time
}

func NewRouter(db *gorm.DB, hosts services.SourceHostFactory, reviewer services.ReviewEvaluator, notifier MergeNotifier, ghCfg config.GitHubConfig) *Router {
	return &Router{
		db:       db,
		hosts:    hosts,
		reviewer: reviewer,
		notifier: notifier,
		issues:   services.NewIssueService(db),
		settings: services.NewReviewSettingsService(db),
		verdicts: services.NewVerdictCache(db),
		ghCfg:    ghCfg,
		now:      time.Now,
	}
}

func (r *Router) mergeMethod() string {
	if r.ghCfg.MergeMethod == "" {
		return "squash"
	}
	return r.ghCfg.MergeMethod
}

// HandlePullRequest reviews one fix PR. Errors are returned only when the
// cycle could not be decided; no audit row exists in that case.
func (r *Router) HandlePullRequest(ctx context.Context, event *PullRequestEvent) (*Outcome, error) {
	if event.Action != "opened" && event.Action != "synchronize" {
		return skipped(fmt.Sprintf("action %q is not reviewed", event.Action)), nil
	}
	headRef := event.PullRequest.Head.Ref
	branch, ok := services.ParseFixBranch(headRef)
	if !ok {
		return skipped("not an AI fix branch"), nil
	}

	issue, err := r.issues.GetByPrefix(ctx, branch.IssuePrefix)
	if err != nil {
		if errors.Is(err, services.ErrIssueNotFound) || errors.Is(err, services.ErrAmbiguousIssuePrefix) {
			logger.Warnf("[Webhook] branch %s: %v", headRef, err)
			return skipped("no issue matches branch " + headRef), nil
		}
		return nil, err
	}

	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, issue.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return skipped("project no longer exists"), nil
		}
		return nil, err
	}
	if !sameRepository(&project, event) {
		logger.Warnf("[Webhook] branch %s belongs to %s, event came from %s", headRef, project.FullName(), event.Repository.FullName)
		return skipped("repository does not match the issue's project"), nil
	}

	settings, err := r.settings.Get(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return skipped("AI review disabled for project"), nil
	}

	host, err := r.hosts(services.TokenFor(&project, r.ghCfg))
	if err != nil {
		return nil, err
	}
	number := event.PRNumber()

	diff, err := host.GetPullRequestDiff(ctx, project.Owner, project.Repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetch PR diff: %w", err)
	}
	stats, err := ParseDiffStats(diff)
	if err != nil {
		logger.Warnf("[Webhook] PR #%d: %v", number, err)
	}

	headSHA := event.PullRequest.Head.SHA
	diffHash := services.ComputeDiffHash(diff)
	review, err := r.review(ctx, &project, issue, headSHA, diffHash, diff, stats)
	if err != nil {
		services.LogError("Webhook", "review_failed", err.Error(), nil, "", "", map[string]interface{}{
			"project_id": project.ID,
			"pr_number":  number,
		})
		return nil, fmt.Errorf("AI review failed: %w", err)
	}

	decision, reason := services.Decide(*review, issue.Severity, *settings)
	logger.Infof("[Webhook] PR #%d (%s): %s, %s", number, project.FullName(), decision, reason)

	var mergeErr error
	switch decision {
	case services.DecisionMerge:
		mergeErr = host.MergePullRequest(ctx, project.Owner, project.Repo, number, r.mergeMethod(), services.MergeCommitMessage(issue, review.Confidence), headSHA)
		if mergeErr != nil {
			logger.Warnf("[Webhook] PR #%d merge failed, left pending: %v", number, mergeErr)
		}
	case services.DecisionReject:
		if err := host.ClosePullRequest(ctx, project.Owner, project.Repo, number); err != nil {
			logger.Warnf("[Webhook] PR #%d close failed: %v", number, err)
		}
	}
	outcome := services.ResolveOutcome(decision, mergeErr)

	if _, err := r.issues.Settle(ctx, issue.ID, outcome.IssueStatus, models.ResolvedByAutoMerge); err != nil {
		logger.Warnf("[Webhook] issue %s not moved to %s: %v", issue.ShortID(), outcome.IssueStatus, err)
	}

	row, err := r.record(ctx, &project, issue, event, review, outcome.Action, stats, diffHash, decision == services.DecisionMerge, mergeErr)
	if err != nil {
		return nil, fmt.Errorf("record PR review: %w", err)
	}

	comment := FormatReviewComment(review, outcome.Action, reason, stats)
	if err := host.CommentOnPullRequest(ctx, project.Owner, project.Repo, number, comment); err != nil {
		logger.Warnf("[Webhook] PR #%d comment failed: %v", number, err)
	}

	if outcome.Action == models.PRActionMerged && settings.NotifyOnMerge && r.notifier != nil {
		if err := r.notifier.SendMergeNotification(ctx, &project, &services.MergeNotification{
			ProjectName: project.FullName(),
			IssueTitle:  issue.Title,
			Severity:    issue.Severity,
			FilePath:    issue.FilePath,
			PRNumber:    number,
			PRURL:       event.PullRequest.HTMLURL,
			Confidence:  review.Confidence,
			Summary:     review.Summary,
		}); err != nil {
			logger.Warnf("[Webhook] merge notification failed: %v", err)
		}
	}

	services.RecordReviewAction(outcome.Action)
	services.LogInfo("Webhook", "auto_merge_decision", fmt.Sprintf("PR #%d %s: %s", number, outcome.Action, reason), nil, "", "", map[string]interface{}{
		"project_id": project.ID,
		"issue_id":   issue.ID,
		"confidence": review.Confidence,
	})
	services.PublishLedgerEvent(services.LedgerEvent{
		Type:      services.EventReviewDecided,
		ProjectID: project.ID,
		IssueID:   issue.ID,
		PRNumber:  number,
		Status:    string(outcome.Action),
		Message:   reason,
	})

	return &Outcome{
		Action:         string(outcome.Action),
		Confidence:     review.Confidence,
		Recommendation: string(review.Recommendation),
		PRReviewID:     row.ID,
	}, nil
}

func sameRepository(project *models.Project, event *PullRequestEvent) bool {
	owner, name := event.Repository.Owner.Login, event.Repository.Name
	if owner == "" || name == "" {
		parts := strings.SplitN(event.Repository.FullName, "/", 2)
		if len(parts) != 2 {
			return false
		}
		owner, name = parts[0], parts[1]
	}
	return strings.EqualFold(owner, project.Owner) && strings.EqualFold(name, project.Repo)
}

// review asks the evaluator for a verdict unless this exact diff was
// already judged at the same head commit, as happens on redelivery.
func (r *Router) review(ctx context.Context, project *models.Project, issue *models.Issue, headSHA, diffHash, diff string, stats DiffStats) (*services.AIReviewResult, error) {
	if cached := r.verdicts.Find(ctx, issue.ID, headSHA, diffHash); cached != nil {
		return cached, nil
	}
	return r.reviewer.Review(ctx, services.ReviewRequest{
		ProjectID: project.ID,
		Diff:      diff,
		Issue: services.IssueContext{
			Title:       issue.Title,
			Severity:    issue.Severity,
			Description: issue.Description,
			FilePath:    issue.FilePath,
		},
		ChangedFiles: stats.Files,
		Tests:        r.latestTests(ctx, project.ID, headSHA),
	})
}

// latestTests returns the newest test run recorded for the head commit, or nil.
func (r *Router) latestTests(ctx context.Context, projectID uint, sha string) *services.TestSummary {
	if sha == "" {
		return nil
	}
	var run models.TestRun
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND commit_sha = ?", projectID, sha).
		Order("created_at DESC, id DESC").
		First(&run).Error
	if err != nil {
		return nil
	}
	return &services.TestSummary{Total: run.Total, Passed: run.Passed, Failed: run.Failed}
}

func (r *Router) record(ctx context.Context, project *models.Project, issue *models.Issue, event *PullRequestEvent,
	review *services.AIReviewResult, action models.PRAction, stats DiffStats, diffHash string, attempted bool, mergeErr error) (*models.PRReview, error) {
	verdict, _ := json.Marshal(review)
	row := &models.PRReview{
		ProjectID:        project.ID,
		IssueID:          issue.ID,
		PRNumber:         event.PRNumber(),
		PRURL:            event.PullRequest.HTMLURL,
		HeadBranch:       event.PullRequest.Head.Ref,
		HeadSHA:          event.PullRequest.Head.SHA,
		Action:           action,
		Approved:         review.Approved,
		Confidence:       review.Confidence,
		Recommendation:   string(review.Recommendation),
		Summary:          review.Summary,
		CodeQualityScore: review.CodeQualityScore,
		ReviewResult:     string(verdict),
		FilesChanged:     stats.FilesChanged,
		Additions:        stats.Additions,
		Deletions:        stats.Deletions,
		DiffHash:         diffHash,
	}
	if attempted {
		row.MergeAttempts = 1
	}
	if mergeErr != nil {
		row.LastError = mergeErr.Error()
	}
	if action == models.PRActionMerged {
		now := r.now()
		row.MergedAt = &now
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}
