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

// AnalysisResult summarizes one analysis run.
type AnalysisResult struct {
	Message           string `json:"message"`
	FilesAnalyzed     int    `json:"files_analyzed"`
	FilesFailed       int    `json:"files_failed"`
	TotalFiles        int    `json:"total_files"`
	IssuesCreated     int    `json:"issues_created"`
	IssuesUpdated     int    `json:"issues_updated"`
	IssuesResolved    int    `json:"issues_resolved"`
	TotalActiveIssues int    `json:"total_active_issues"`
	HealthScore       int    `json:"health_score"`
	Language          string `json:"language"`
	Framework         string `json:"framework"`
	IsFirstAnalysis   bool   `json:"is_first_analysis"`
}

// AnalysisService runs the snapshot -> findings -> reconcile pipeline for a project.
type AnalysisService struct {
	db         *gorm.DB
	snapshots  SnapshotProvider
	finder     FindingGenerator
	reconciler *Reconciler
	issues     *IssueService
	leases     *LeaseManager
	ghCfg      config.GitHubConfig
	wsCfg      config.WorkspaceConfig
	now        func() time.Time
}

func NewAnalysisService(db *gorm.DB, snapshots SnapshotProvider, finder FindingGenerator, ghCfg config.GitHubConfig, wsCfg config.WorkspaceConfig) *AnalysisService {
	return &AnalysisService{
		db:         db,
		snapshots:  snapshots,
		finder:     finder,
		reconciler: NewReconciler(db),
		issues:     NewIssueService(db),
		leases:     NewLeaseManager(db),
		ghCfg:      ghCfg,
		wsCfg:      wsCfg,
		now:        time.Now,
	}
}

// Analyze syncs the project's working copy, analyzes new or changed code
// files one at a time and reconciles each file's findings into the ledger.
// A second run for the same project while one is active fails with
// ErrAnalysisInProgress.
func (s *AnalysisService) Analyze(ctx context.Context, projectID uint) (*AnalysisResult, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	lease, err := s.leases.AcquireAnalysis(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warnf("[Analysis] failed to release lease for project %d: %v", project.ID, err)
		}
	}()

	PublishLedgerEvent(LedgerEvent{Type: EventAnalysisStarted, ProjectID: project.ID})
	result, err := s.run(ctx, &project)
	analysisCounter.WithLabelValues(statusLabel(err)).Inc()
	if err != nil {
		logger.Errorf("[Analysis] project %s failed: %v", project.FullName(), err)
		LogError("Analysis", "analysis_failed", err.Error(), nil, "", "", map[string]interface{}{"project_id": project.ID})
		PublishLedgerEvent(LedgerEvent{Type: EventAnalysisFailed, ProjectID: project.ID, Error: err.Error()})
		return nil, err
	}

	score := result.HealthScore
	PublishLedgerEvent(LedgerEvent{
		Type:        EventAnalysisCompleted,
		ProjectID:   project.ID,
		HealthScore: &score,
		Message:     result.Message,
	})
	return result, nil
}

func (s *AnalysisService) run(ctx context.Context, project *models.Project) (*AnalysisResult, error) {
	synced, err := s.snapshots.Sync(ctx, project, TokenFor(project, s.ghCfg))
	if err != nil {
		return nil, fmt.Errorf("sync repository: %w", err)
	}
	now := s.now()
	first := project.LastAnalyzedAt == nil

	base := project.LastCommitSHA
	if base == "" {
		base = synced.PreviousHead
	}

	if !first && !synced.Cloned && synced.Head == base {
		if err := s.db.WithContext(ctx).Model(project).Updates(map[string]interface{}{
			"last_pulled_at": now,
			"local_path":     synced.LocalPath,
		}).Error; err != nil {
			return nil, err
		}
		score, active, err := s.issues.ProjectHealth(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		logger.Infof("[Analysis] %s: no changes since %s", project.FullName(), shortSHA(base))
		return &AnalysisResult{
			Message:           "No changes detected",
			TotalActiveIssues: active,
			HealthScore:       score,
			Language:          project.Language,
			Framework:         project.Framework,
		}, nil
	}

	language, framework := project.Language, project.Framework
	var targets []string
	var totalFiles int

	if first {
		files, err := s.snapshots.ListFiles(synced.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
		if len(files) == 0 {
			return nil, ErrNoCodeFiles
		}
		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = f.Path
		}
		language = DetectLanguage(paths)
		framework = s.detectFramework(synced.LocalPath, paths)
		totalFiles = len(paths)
		targets = capFiles(paths, s.wsCfg.MaxFirstRunFiles)
	} else {
		targets, totalFiles, err = s.changedTargets(ctx, synced, base)
		if err != nil {
			return nil, err
		}
	}

	logger.Infof("[Analysis] %s: analyzing %d of %d files (first=%v)", project.FullName(), len(targets), totalFiles, first)

	var totals ReconcileResult
	analyzed, failed := 0, 0
	for _, path := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.analyzeFile(ctx, project, synced.LocalPath, path, language)
		if err != nil {
			failed++
			logger.Warnf("[Analysis] %s: %s failed: %v", project.FullName(), path, err)
			continue
		}
		analyzed++
		totals.Add(res)
	}

	score, active, err := s.issues.ProjectHealth(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(project).Updates(map[string]interface{}{
		"language":         language,
		"framework":        framework,
		"health_score":     score,
		"last_analyzed_at": now,
		"last_pulled_at":   now,
		"local_path":       synced.LocalPath,
		"last_commit_sha":  synced.Head,
	}).Error; err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	recordHealth(project.ID, score)

	msg := fmt.Sprintf("Analyzed %d files", analyzed)
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	return &AnalysisResult{
		Message:           msg,
		FilesAnalyzed:     analyzed,
		FilesFailed:       failed,
		TotalFiles:        totalFiles,
		IssuesCreated:     totals.Created,
		IssuesUpdated:     totals.Updated,
		IssuesResolved:    totals.Resolved,
		TotalActiveIssues: active,
		HealthScore:       score,
		Language:          language,
		Framework:         framework,
		IsFirstAnalysis:   first,
	}, nil
}

// changedTargets lists code files added or modified since base. When base is
// unknown to the working copy (after a re-clone) it falls back to a capped
// full listing.
func (s *AnalysisService) changedTargets(ctx context.Context, synced *SyncResult, base string) ([]string, int, error) {
	changes, err := s.snapshots.ChangedSince(ctx, synced.LocalPath, base)
	if err != nil {
		logger.Warnf("[Analysis] cannot diff against %s, analyzing a capped full listing: %v", shortSHA(base), err)
		files, err := s.snapshots.ListFiles(synced.LocalPath)
		if err != nil {
			return nil, 0, fmt.Errorf("list files: %w", err)
		}
		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = f.Path
		}
		return capFiles(paths, s.wsCfg.MaxFirstRunFiles), len(paths), nil
	}

	var targets []string
	for _, ch := range changes {
		if ch.Status == ChangeDeleted || !IsCodeFile(ch.Path) {
			continue
		}
		targets = append(targets, ch.Path)
	}
	return targets, len(targets), nil
}

func (s *AnalysisService) analyzeFile(ctx context.Context, project *models.Project, localPath, path, language string) (ReconcileResult, error) {
	content, err := s.snapshots.ReadFile(localPath, path)
	if err != nil {
		return ReconcileResult{}, err
	}
	hint := LanguageForPath(path)
	if hint == "" {
		hint = language
	}
	findings, err := s.finder.Analyze(ctx, AnalyzeFileRequest{
		ProjectID: project.ID,
		Path:      path,
		Content:   content,
		Language:  hint,
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	return s.reconciler.Reconcile(ctx, project.ID, path, findings, content)
}

func (s *AnalysisService) detectFramework(localPath string, paths []string) string {
	in := FrameworkInputs{Paths: paths}
	in.PackageJSON, _ = s.snapshots.ReadFile(localPath, "package.json")
	in.Requirements, _ = s.snapshots.ReadFile(localPath, "requirements.txt")
	for _, name := range []string{"next.config.js", "next.config.mjs", "nuxt.config.js", "vue.config.js", "angular.json", "svelte.config.js"} {
		if _, err := s.snapshots.ReadFile(localPath, name); err == nil {
			in.Paths = append(in.Paths, name)
		}
	}
	return DetectFramework(in)
}

func capFiles(paths []string, max int) []string {
	if max > 0 && len(paths) > max {
		return paths[:max]
	}
	return paths
}
