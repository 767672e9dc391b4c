package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/middleware"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/pkg/response"
)

type IssueHandler struct {
	projects *services.ProjectService
	issues   *services.IssueService
	fixer    services.AutoFixer
	queue    services.TaskQueue
}

func NewIssueHandler(projects *services.ProjectService, issues *services.IssueService, fixer services.AutoFixer, queue services.TaskQueue) *IssueHandler {
	return &IssueHandler{projects: projects, issues: issues, fixer: fixer, queue: queue}
}

// List returns a project's issues, most severe first
// GET /api/projects/:id/issues
func (h *IssueHandler) List(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.IssueListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Status != "" && !models.IssueStatus(req.Status).Valid() {
		response.BadRequest(c, "invalid status "+req.Status)
		return
	}
	if _, err := h.projects.Authorize(c.Request.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c)); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	resp, err := h.issues.List(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, resp)
}

// Health recomputes the health score from the current active issues
// GET /api/projects/:id/health
func (h *IssueHandler) Health(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	project, err := h.projects.Authorize(c.Request.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	score, active, err := h.issues.ProjectHealth(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	counts, err := h.issues.SeverityCounts(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, gin.H{
		"project_id":       id,
		"health_score":     score,
		"active_issues":    active,
		"by_severity":      counts,
		"last_analyzed_at": project.LastAnalyzedAt,
	})
}

// GET /api/issues/:id
func (h *IssueHandler) Get(c *gin.Context) {
	issue, ok := h.load(c)
	if !ok {
		return
	}
	response.Success(c, issue)
}

// POST /api/issues/:id/ignore
func (h *IssueHandler) Ignore(c *gin.Context) {
	issue, ok := h.load(c)
	if !ok {
		return
	}
	updated, err := h.issues.Ignore(c.Request.Context(), issue.ID)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, updated)
}

// POST /api/issues/:id/reopen
func (h *IssueHandler) Reopen(c *gin.Context) {
	issue, ok := h.load(c)
	if !ok {
		return
	}
	updated, err := h.issues.Reopen(c.Request.Context(), issue.ID)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, updated)
}

// AutoFix generates a fix and opens a PR for it. With ?async=true the run
// is queued and the request returns 202.
// POST /api/issues/:id/fix
func (h *IssueHandler) AutoFix(c *gin.Context) {
	issue, ok := h.load(c)
	if !ok {
		return
	}
	if !issue.Status.CanTransitionTo(models.IssueInProgress) {
		respondError(c, services.ErrInvalidTransition, http.StatusInternalServerError)
		return
	}
	userID := middleware.GetUserID(c)

	if async, _ := strconv.ParseBool(c.Query("async")); async && h.queue != nil {
		taskID, err := h.queue.Enqueue(services.NewAutoFixTask(issue.ID, &userID))
		if err != nil {
			respondError(c, err, http.StatusInternalServerError)
			return
		}
		response.Accepted(c, gin.H{"task_id": taskID, "async": h.queue.IsAsync()})
		return
	}

	result, err := h.fixer.AutoFix(c.Request.Context(), issue.ID, &userID)
	if err != nil {
		respondError(c, err, http.StatusBadGateway)
		return
	}
	response.Success(c, result)
}

func (h *IssueHandler) load(c *gin.Context) (*models.Issue, bool) {
	issue, err := h.issues.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return nil, false
	}
	if _, err := h.projects.Authorize(c.Request.Context(), issue.ProjectID, middleware.GetUserID(c), middleware.IsAdmin(c)); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return nil, false
	}
	return issue, true
}
