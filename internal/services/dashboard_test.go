package services

import (
	"context"
	"testing"

	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedDashboardIssue(t *testing.T, db *gorm.DB, projectID uint, title string, sev models.Severity, status models.IssueStatus) {
	t.Helper()
	require.NoError(t, db.Create(&models.Issue{
		ProjectID: projectID,
		IssueKey:  models.BuildIssueKey("a.go", 0, title),
		Severity:  sev,
		Title:     title,
		FilePath:  "a.go",
		Status:    status,
	}).Error)
}

func TestDashboardService_GetStats(t *testing.T) {
	db := testutil.NewDB(t)
	mine := testutil.CreateProject(t, db, 1)
	theirs := &models.Project{Name: "other", Owner: "acme", Repo: "other", URL: "https://github.com/acme/other", Branch: "main", CreatedBy: 2, HealthScore: 50}
	require.NoError(t, db.Create(theirs).Error)
	require.NoError(t, db.Model(mine).Update("health_score", 81).Error)

	seedDashboardIssue(t, db, mine.ID, "c1", models.SeverityCritical, models.IssueOpen)
	seedDashboardIssue(t, db, mine.ID, "h1", models.SeverityHigh, models.IssueInProgress)
	seedDashboardIssue(t, db, mine.ID, "h2", models.SeverityHigh, models.IssueFixed)
	seedDashboardIssue(t, db, mine.ID, "l1", models.SeverityLow, models.IssueIgnored)
	seedDashboardIssue(t, db, theirs.ID, "m1", models.SeverityMedium, models.IssueOpen)

	for _, a := range []models.PRAction{models.PRActionMerged, models.PRActionMerged, models.PRActionRejected} {
		require.NoError(t, db.Create(&models.PRReview{ProjectID: mine.ID, IssueID: "x", PRNumber: 1, Action: a}).Error)
	}
	require.NoError(t, db.Create(&models.PRReview{ProjectID: theirs.ID, IssueID: "y", PRNumber: 2, Action: models.PRActionPending}).Error)

	svc := NewDashboardService(db)

	t.Run("owner sees own projects", func(t *testing.T) {
		resp, err := svc.GetStats(context.Background(), 1, false)
		require.NoError(t, err)
		require.Len(t, resp.Projects, 1)

		p := resp.Projects[0]
		assert.Equal(t, 81, p.HealthScore)
		assert.Equal(t, SeverityCounts{Critical: 1, High: 1}, p.ActiveIssues)
		assert.Equal(t, int64(2), p.ActiveIssues.Total())
		assert.Equal(t, PROutcomes{Merged: 2, Rejected: 1}, p.PROutcomes)
		assert.Equal(t, 81.0, resp.AverageHealth)
	})

	t.Run("admin sees everything", func(t *testing.T) {
		resp, err := svc.GetStats(context.Background(), 99, true)
		require.NoError(t, err)
		require.Len(t, resp.Projects, 2)
		assert.Equal(t, SeverityCounts{Critical: 1, High: 1, Medium: 1}, resp.ActiveIssues)
		assert.Equal(t, PROutcomes{Merged: 2, Rejected: 1, Pending: 1}, resp.PROutcomes)
		assert.InDelta(t, 65.5, resp.AverageHealth, 0.001)
	})

	t.Run("no projects", func(t *testing.T) {
		resp, err := svc.GetStats(context.Background(), 42, false)
		require.NoError(t, err)
		assert.Empty(t, resp.Projects)
		assert.Zero(t, resp.AverageHealth)
	})
}
