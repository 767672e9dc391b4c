package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/middleware"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubAnalyzer struct {
	result *services.AnalysisResult
	err    error
}

func (s *stubAnalyzer) Analyze(context.Context, uint) (*services.AnalysisResult, error) {
	return s.result, s.err
}

type stubFixer struct {
	calls int
	err   error
}

func (s *stubFixer) AutoFix(_ context.Context, issueID string, _ *uint) (*services.FixResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &services.FixResult{IssueID: issueID, PRNumber: 12}, nil
}

type recordingQueue struct {
	tasks []*services.Task
}

func (q *recordingQueue) Enqueue(task *services.Task) (string, error) {
	q.tasks = append(q.tasks, task)
	return "task-1", nil
}
func (q *recordingQueue) IsAsync() bool { return true }
func (q *recordingQueue) Close() error  { return nil }

type noopRemover struct{}

func (noopRemover) Remove(string) error { return nil }

type apiFixture struct {
	db       *gorm.DB
	host     *testutil.FakeHost
	analyzer *stubAnalyzer
	fixer    *stubFixer
	queue    *recordingQueue
	engine   *gin.Engine
}

// asUser stands in for AuthRequired: X-User and X-Role pick the caller.
func asUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var id uint
		if err := json.Unmarshal([]byte(c.GetHeader("X-User")), &id); err == nil {
			c.Set(middleware.ContextUserID, id)
		}
		c.Set(middleware.ContextRole, c.GetHeader("X-Role"))
		c.Next()
	}
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		db:       testutil.NewDB(t),
		host:     testutil.NewFakeHost(),
		analyzer: &stubAnalyzer{result: &services.AnalysisResult{Message: "done", HealthScore: 90}},
		fixer:    &stubFixer{},
		queue:    &recordingQueue{},
	}
	hosts := func(string) (services.SourceHost, error) { return f.host, nil }
	ghCfg := config.GitHubConfig{Token: "t"}

	projects := services.NewProjectService(f.db, hosts, noopRemover{}, ghCfg)
	issues := services.NewIssueService(f.db)
	ph := NewProjectHandler(projects, services.NewReviewSettingsService(f.db), services.NewPRStatusService(f.db, hosts, ghCfg), f.analyzer, f.queue)
	ih := NewIssueHandler(projects, issues, f.fixer, f.queue)

	r := gin.New()
	api := r.Group("/api", asUser())
	api.POST("/projects/connect", ph.Connect)
	api.GET("/projects/:id", ph.Get)
	api.DELETE("/projects/:id", ph.Delete)
	api.POST("/projects/:id/analyze", ph.Analyze)
	api.PUT("/projects/:id/review-settings", ph.UpdateReviewSettings)
	api.GET("/projects/:id/issues", ih.List)
	api.GET("/projects/:id/health", ih.Health)
	api.POST("/issues/:id/ignore", ih.Ignore)
	api.POST("/issues/:id/reopen", ih.Reopen)
	api.POST("/issues/:id/fix", ih.AutoFix)
	f.engine = r
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, user uint, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", jsonUint(user))
	req.Header.Set("X-Role", role)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func jsonUint(v uint) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestProjectAPI_ConnectIsIdempotent(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/projects/connect", 1, "user", gin.H{"repo_url": "https://github.com/acme/widgets"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first models.Project
	decodeData(t, w, &first)
	assert.Equal(t, "acme", first.Owner)
	assert.Equal(t, "main", first.Branch)

	w = f.do(t, http.MethodPost, "/api/projects/connect", 1, "user", gin.H{"repo_url": "https://github.com/ACME/widgets.git"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second models.Project
	decodeData(t, w, &second)
	assert.Equal(t, first.ID, second.ID)

	w = f.do(t, http.MethodPost, "/api/projects/connect", 1, "user", gin.H{"repo_url": "https://gitlab.com/acme/widgets"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectAPI_Ownership(t *testing.T) {
	f := newAPIFixture(t)
	p := testutil.CreateProject(t, f.db, 1)
	path := "/api/projects/" + jsonUint(p.ID)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, 1, "user", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, path, 2, "user", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, 2, models.RoleAdmin, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/projects/999", 1, "user", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/projects/abc", 1, "user", nil).Code)
}

func TestProjectAPI_Analyze(t *testing.T) {
	f := newAPIFixture(t)
	p := testutil.CreateProject(t, f.db, 1)
	path := "/api/projects/" + jsonUint(p.ID) + "/analyze"

	w := f.do(t, http.MethodPost, path, 1, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res services.AnalysisResult
	decodeData(t, w, &res)
	assert.Equal(t, 90, res.HealthScore)

	w = f.do(t, http.MethodPost, path+"?async=true", 1, "user", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, services.TaskTypeAnalysis, f.queue.tasks[0].Type)
	assert.Equal(t, p.ID, f.queue.tasks[0].ProjectID)

	f.analyzer.err = services.ErrAnalysisInProgress
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, path, 1, "user", nil).Code)

	f.analyzer.err = services.ErrNoCodeFiles
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, http.MethodPost, path, 1, "user", nil).Code)
}

func TestProjectAPI_ReviewSettingsValidation(t *testing.T) {
	f := newAPIFixture(t)
	p := testutil.CreateProject(t, f.db, 1)
	path := "/api/projects/" + jsonUint(p.ID) + "/review-settings"

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, path, 1, "user", gin.H{"confidence_threshold": 150}).Code)

	w := f.do(t, http.MethodPut, path, 1, "user", gin.H{"confidence_threshold": 70})
	require.Equal(t, http.StatusOK, w.Code)
	var s models.AIReviewSettings
	decodeData(t, w, &s)
	assert.Equal(t, 70, s.ConfidenceThreshold)
}

func TestIssueAPI_Lifecycle(t *testing.T) {
	f := newAPIFixture(t)
	p := testutil.CreateProject(t, f.db, 1)
	issue := &models.Issue{
		ProjectID: p.ID,
		IssueKey:  models.BuildIssueKey("main.go", 3, "nil deref"),
		Severity:  models.SeverityHigh,
		Title:     "nil deref",
		FilePath:  "main.go",
		Status:    models.IssueOpen,
	}
	require.NoError(t, f.db.Create(issue).Error)

	w := f.do(t, http.MethodGet, "/api/projects/"+jsonUint(p.ID)+"/health", 1, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health struct {
		HealthScore  int `json:"health_score"`
		ActiveIssues int `json:"active_issues"`
	}
	decodeData(t, w, &health)
	assert.Equal(t, 92, health.HealthScore)
	assert.Equal(t, 1, health.ActiveIssues)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/projects/"+jsonUint(p.ID)+"/issues?status=bogus", 1, "user", nil).Code)

	ignore := "/api/issues/" + issue.ID + "/ignore"
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, ignore, 2, "user", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, ignore, 1, "user", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, ignore, 1, "user", nil).Code)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/fix", 1, "user", nil).Code)
	assert.Zero(t, f.fixer.calls)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/reopen", 1, "user", nil).Code)

	w = f.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/fix", 1, "user", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, f.fixer.calls)

	w = f.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/fix?async=1", 1, "user", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, issue.ID, f.queue.tasks[0].IssueID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/issues/ffffffff/ignore", 1, "user", nil).Code)
}
