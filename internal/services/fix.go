package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services/github"
	"github.com/huangang/codemender/pkg/logger"
	"gorm.io/gorm"
)

// FixResult is what one successful auto-fix run produced.
type FixResult struct {
	IssueID     string      `json:"issue_id"`
	Branch      string      `json:"branch"`
	CommitSHA   string      `json:"commit_sha"`
	PRNumber    int         `json:"pr_number"`
	PRURL       string      `json:"pr_url"`
	TestsPassed bool        `json:"tests_passed"`
	Tests       *TestResult `json:"tests"`
	TestRunID   uint        `json:"test_run_id"`
	Explanation string      `json:"fix_explanation"`
	Changes     []string    `json:"changes"`
}

// FixService drives one issue from open to an open pull request.
type FixService struct {
	db     *gorm.DB
	issues *IssueService
	fixer  FixGenerator
	hosts  SourceHostFactory
	tests  TestRunner
	ghCfg  config.GitHubConfig
	now    func() time.Time
}

func NewFixService(db *gorm.DB, fixer FixGenerator, hosts SourceHostFactory, tests TestRunner, ghCfg config.GitHubConfig) *FixService {
	return &FixService{
		db:     db,
		issues: NewIssueService(db),
		fixer:  fixer,
		hosts:  hosts,
		tests:  tests,
		ghCfg:  ghCfg,
		now:    time.Now,
	}
}

// fixRun carries state across steps so a failure can be recorded with
// whatever was produced before it.
type fixRun struct {
	issue    *models.Issue
	project  *models.Project
	branch   string
	commit   string
	proposal *FixProposal
}

// AutoFix generates a fix for issueID, commits it to a new branch, runs the
// tests and opens a pull request. The issue is in_progress while the pull
// request is open. Any failure after the issue was claimed resets it to open,
// appends a failed fix_history row and returns the error.
func (s *FixService) AutoFix(ctx context.Context, issueID string, triggeredBy *uint) (*FixResult, error) {
	issue, err := s.issues.Get(ctx, issueID)
	if err != nil {
		return nil, err
	}
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, issue.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	if issue.FilePath == "" {
		return nil, fmt.Errorf("issue %s has no associated file", issue.ShortID())
	}

	claimed, err := s.issues.Transition(ctx, issue.ID, models.IssueInProgress, "")
	if err != nil {
		return nil, err
	}

	logger.Infof("[AutoFix] starting fix for issue %s (%s) in %s", claimed.ShortID(), claimed.Title, project.FullName())
	run := &fixRun{issue: claimed, project: &project}

	result, err := s.drive(ctx, run)
	if err != nil {
		s.compensate(run, triggeredBy, err)
		fixCounter.WithLabelValues(statusLabel(err)).Inc()
		return nil, err
	}

	changes, _ := json.Marshal(run.proposal.Changes)
	history := &models.FixHistory{
		IssueID:     claimed.ID,
		ProjectID:   project.ID,
		Status:      models.FixStatusSuccess,
		BranchName:  result.Branch,
		CommitSHA:   result.CommitSHA,
		PRNumber:    result.PRNumber,
		PRURL:       result.PRURL,
		Explanation: result.Explanation,
		Changes:     string(changes),
		TriggeredBy: triggeredBy,
	}
	if err := s.db.WithContext(ctx).Create(history).Error; err != nil {
		// The pull request is already open; keep its coordinates in the system log.
		logger.Errorf("[AutoFix] failed to record fix history for %s: %v", claimed.ShortID(), err)
		LogError("AutoFix", "fix_history_failed", err.Error(), triggeredBy, "", "", map[string]interface{}{
			"issue_id":   claimed.ID,
			"project_id": project.ID,
			"branch":     result.Branch,
			"pr_number":  result.PRNumber,
			"pr_url":     result.PRURL,
		})
	}

	fixCounter.WithLabelValues(statusLabel(nil)).Inc()
	PublishLedgerEvent(LedgerEvent{
		Type:      EventFixOpened,
		ProjectID: project.ID,
		IssueID:   claimed.ID,
		PRNumber:  result.PRNumber,
		Status:    string(models.IssueInProgress),
		Message:   result.PRURL,
	})
	logger.Infof("[AutoFix] opened %s for issue %s", result.PRURL, claimed.ShortID())
	return result, nil
}

func (s *FixService) drive(ctx context.Context, run *fixRun) (*FixResult, error) {
	issue, project := run.issue, run.project

	host, err := s.hosts(TokenFor(project, s.ghCfg))
	if err != nil {
		return nil, fmt.Errorf("source host: %w", err)
	}

	content := issue.OriginalCode
	if content == "" {
		logger.Infof("[AutoFix] cache miss for %s, fetching from %s", issue.FilePath, project.Branch)
		content, err = host.GetFileContent(ctx, project.Owner, project.Repo, issue.FilePath, project.Branch)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", issue.FilePath, err)
		}
	}

	proposal, err := s.fixer.Fix(ctx, FixRequest{
		ProjectID:        project.ID,
		Path:             issue.FilePath,
		Content:          content,
		IssueDescription: issue.Title + "\n\n" + issue.Description,
		Language:         project.Language,
	})
	if err != nil {
		return nil, err
	}
	run.proposal = proposal
	if proposal.FixedCode == content {
		return nil, ErrNoCodeChange
	}

	run.branch = FixBranchName(issue.ID, s.now())
	if _, err := host.CreateBranch(ctx, project.Owner, project.Repo, run.branch, project.Branch); err != nil {
		return nil, fmt.Errorf("failed to create branch: %w", err)
	}

	run.commit, err = host.CommitFile(ctx, project.Owner, project.Repo, run.branch, issue.FilePath, proposal.FixedCode, FixCommitMessage(issue, proposal))
	if err != nil {
		return nil, fmt.Errorf("failed to commit fix: %w", err)
	}

	pkg, _ := host.GetFileContent(ctx, project.Owner, project.Repo, "package.json", run.branch)
	tests, err := s.tests.Run(ctx, TestRunRequest{
		Project:     project,
		Branch:      run.branch,
		CommitSHA:   run.commit,
		Token:       TokenFor(project, s.ghCfg),
		PackageJSON: pkg,
	})
	if err != nil {
		return nil, fmt.Errorf("test run: %w", err)
	}
	testRun, err := s.recordTestRun(ctx, run, tests)
	if err != nil {
		return nil, err
	}

	pr, err := host.OpenPullRequest(ctx, project.Owner, project.Repo, github.NewPullRequest{
		Title: "AI fix: " + issue.Title,
		Body:  FixPRBody(issue, proposal, tests),
		Head:  run.branch,
		Base:  project.Branch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PR: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Issue{}).Where("id = ?", issue.ID).
		Update("fix_code", proposal.FixedCode).Error; err != nil {
		return nil, fmt.Errorf("store fix: %w", err)
	}

	return &FixResult{
		IssueID:     issue.ID,
		Branch:      run.branch,
		CommitSHA:   run.commit,
		PRNumber:    pr.Number,
		PRURL:       pr.URL,
		TestsPassed: tests.Success,
		Tests:       tests,
		TestRunID:   testRun.ID,
		Explanation: proposal.Explanation,
		Changes:     proposal.Changes,
	}, nil
}

func (s *FixService) recordTestRun(ctx context.Context, run *fixRun, tests *TestResult) (*models.TestRun, error) {
	raw, _ := json.Marshal(tests)
	row := &models.TestRun{
		ProjectID:  run.project.ID,
		IssueID:    run.issue.ID,
		CommitSHA:  run.commit,
		Branch:     run.branch,
		Mode:       tests.Mode,
		Framework:  tests.Framework,
		Success:    tests.Success,
		Total:      tests.Total,
		Passed:     tests.Passed,
		Failed:     tests.Failed,
		DurationMs: tests.DurationMs,
		Result:     string(raw),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("record test run: %w", err)
	}
	return row, nil
}

// compensate resets the claimed issue and records the failure. It runs on a
// fresh context so a cancelled request still leaves the ledger consistent.
func (s *FixService) compensate(run *fixRun, triggeredBy *uint, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue := run.issue
	logger.Errorf("[AutoFix] fix for issue %s failed: %v", issue.ShortID(), cause)

	if err := s.db.WithContext(ctx).Model(&models.Issue{}).
		Where("id = ? AND status = ?", issue.ID, models.IssueInProgress).
		Updates(map[string]interface{}{"status": models.IssueOpen}).Error; err != nil {
		logger.Errorf("[AutoFix] failed to reset issue %s to open: %v", issue.ShortID(), err)
	}

	history := &models.FixHistory{
		IssueID:      issue.ID,
		ProjectID:    run.project.ID,
		Status:       models.FixStatusFailed,
		BranchName:   run.branch,
		CommitSHA:    run.commit,
		ErrorMessage: truncate(cause.Error(), 2000),
		TriggeredBy:  triggeredBy,
	}
	if run.proposal != nil {
		history.Explanation = run.proposal.Explanation
	}
	if err := s.db.WithContext(ctx).Create(history).Error; err != nil {
		logger.Warnf("[AutoFix] failed to record fix history for %s: %v", issue.ShortID(), err)
	}

	LogError("AutoFix", "fix_failed", cause.Error(), triggeredBy, "", "", map[string]interface{}{
		"issue_id":   issue.ID,
		"project_id": run.project.ID,
		"branch":     run.branch,
	})
	PublishLedgerEvent(LedgerEvent{
		Type:      EventFixFailed,
		ProjectID: run.project.ID,
		IssueID:   issue.ID,
		Status:    string(models.IssueOpen),
		Error:     cause.Error(),
	})
}

// FixCommitMessage embeds the explanation, the change list and the issue prefix.
func FixCommitMessage(issue *models.Issue, p *FixProposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "AI auto-fix: %s\n\n", issue.Title)
	if p.Explanation != "" {
		b.WriteString(p.Explanation)
		b.WriteString("\n\n")
	}
	if len(p.Changes) > 0 {
		b.WriteString("Changes:\n")
		for _, c := range p.Changes {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Fixes issue #%s", issue.ShortID())
	return b.String()
}

// FixPRBody renders the pull request description.
func FixPRBody(issue *models.Issue, p *FixProposal, tests *TestResult) string {
	var b strings.Builder
	b.WriteString("## AI Auto-Fix\n\n")
	fmt.Fprintf(&b, "**Issue**: %s\n", issue.Title)
	fmt.Fprintf(&b, "**Severity**: %s\n", issue.Severity)
	fmt.Fprintf(&b, "**File**: `%s`", issue.FilePath)
	if issue.LineNumber != nil {
		fmt.Fprintf(&b, " (Line %d)", *issue.LineNumber)
	}
	b.WriteString("\n\n### Description\n")
	if issue.Description != "" {
		b.WriteString(issue.Description)
	} else {
		b.WriteString("No description provided.")
	}
	b.WriteString("\n\n### Fix Explanation\n")
	b.WriteString(p.Explanation)
	b.WriteString("\n\n### Changes Made\n")
	for _, c := range p.Changes {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	if tests != nil {
		b.WriteString("\n### Test Results\n")
		fmt.Fprintf(&b, "- **Mode**: %s\n", tests.Mode)
		fmt.Fprintf(&b, "- **Total Tests**: %d\n", tests.Total)
		fmt.Fprintf(&b, "- **Passed**: %d\n", tests.Passed)
		fmt.Fprintf(&b, "- **Failed**: %d\n", tests.Failed)
		fmt.Fprintf(&b, "- **Duration**: %.2fs\n", float64(tests.DurationMs)/1000)
		if tests.Error != "" {
			fmt.Fprintf(&b, "- **Error**: %s\n", tests.Error)
		}
	}
	b.WriteString("\n---\n\n*This pull request was generated automatically. The review bot evaluates it on every push.*")
	return b.String()
}
