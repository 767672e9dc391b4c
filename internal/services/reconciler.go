package services

import (
	"context"
	"fmt"
	"time"

	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
	"gorm.io/gorm"
)

// ReconcileResult counts the ledger operations of one or more passes.
type ReconcileResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Resolved int `json:"resolved"`
}

func (r *ReconcileResult) Add(o ReconcileResult) {
	r.Created += o.Created
	r.Updated += o.Updated
	r.Resolved += o.Resolved
}

// Reconciler merges a fresh finding set for one file into the issue ledger.
type Reconciler struct {
	db  *gorm.DB
	now func() time.Time
}

func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db, now: time.Now}
}

// Reconcile diffs findings against the file's live issues (open or
// in_progress) by issue key. Matching keys refresh a changed description,
// unknown keys create issues, and live issues no finding mentioned are
// resolved as fixed externally. An empty finding list resolves every live
// issue of the file.
//
// Running it twice with the same findings yields zero operations the second
// time, provided no two findings share a key.
func (r *Reconciler) Reconcile(ctx context.Context, projectID uint, filePath string, findings []Finding, fileContent string) (ReconcileResult, error) {
	var result ReconcileResult
	db := r.db.WithContext(ctx)

	var live []models.Issue
	if err := db.Where("project_id = ? AND file_path = ? AND status IN ?",
		projectID, filePath, models.ActiveIssueStatuses).
		Order("created_at ASC").Find(&live).Error; err != nil {
		return result, fmt.Errorf("load live issues: %w", err)
	}

	byKey := make(map[string]*models.Issue, len(live))
	for i := range live {
		if _, dup := byKey[live[i].IssueKey]; !dup {
			byKey[live[i].IssueKey] = &live[i]
		}
	}
	touched := make(map[string]bool, len(findings))
	createdNow := make(map[string]bool)

	for _, f := range findings {
		key := models.BuildIssueKey(filePath, lineOrZero(f.LineNumber), f.Title)
		touched[key] = true

		if existing, ok := byKey[key]; ok {
			if existing.Description != f.Description {
				if err := db.Model(&models.Issue{}).Where("id = ?", existing.ID).
					Updates(map[string]interface{}{"description": f.Description, "is_new": false}).Error; err != nil {
					return result, fmt.Errorf("update issue %s: %w", existing.ID, err)
				}
				existing.Description = f.Description
				existing.IsNew = false
				result.Updated++
			} else if existing.IsNew && !createdNow[key] {
				// Seen again unchanged: it is no longer new. Not counted as an update.
				if err := db.Model(&models.Issue{}).Where("id = ?", existing.ID).
					Update("is_new", false).Error; err != nil {
					return result, fmt.Errorf("update issue %s: %w", existing.ID, err)
				}
				existing.IsNew = false
			}
			continue
		}

		issue := &models.Issue{
			ProjectID:        projectID,
			IssueKey:         key,
			Severity:         f.Severity,
			Title:            f.Title,
			Description:      f.Description,
			FilePath:         filePath,
			LineNumber:       f.LineNumber,
			Status:           models.IssueOpen,
			AutoFixAvailable: f.SuggestedFix != "",
			SuggestedFix:     f.SuggestedFix,
			OriginalCode:     fileContent,
			IsNew:            true,
		}
		if err := db.Create(issue).Error; err != nil {
			return result, fmt.Errorf("create issue %q: %w", key, err)
		}
		// A later finding with the same key in this pass may only update.
		byKey[key] = issue
		createdNow[key] = true
		result.Created++
	}

	now := r.now()
	for i := range live {
		issue := &live[i]
		if touched[issue.IssueKey] || !issue.Status.CanTransitionTo(models.IssueResolved) {
			continue
		}
		res := db.Model(&models.Issue{}).
			Where("id = ? AND status IN ?", issue.ID, models.ActiveIssueStatuses).
			Updates(map[string]interface{}{
				"status":      models.IssueResolved,
				"resolved_at": now,
				"resolved_by": models.ResolvedByExternal,
			})
		if res.Error != nil {
			return result, fmt.Errorf("resolve issue %s: %w", issue.ID, res.Error)
		}
		result.Resolved += int(res.RowsAffected)
	}

	if result != (ReconcileResult{}) {
		log := logger.With("reconciler")
		log.Info().
			Uint("project_id", projectID).
			Str("file", filePath).
			Int("created", result.Created).
			Int("updated", result.Updated).
			Int("resolved", result.Resolved).
			Msg("[Reconciler] ledger updated")
	}
	recordReconcile(result)
	return result, nil
}

func lineOrZero(line *int) int {
	if line == nil {
		return 0
	}
	return *line
}
