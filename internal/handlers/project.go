package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/middleware"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/pkg/response"
)

type ProjectHandler struct {
	projects *services.ProjectService
	settings *services.ReviewSettingsService
	status   *services.PRStatusService
	analysis services.Analyzer
	queue    services.TaskQueue
}

func NewProjectHandler(projects *services.ProjectService, settings *services.ReviewSettingsService, status *services.PRStatusService, analysis services.Analyzer, queue services.TaskQueue) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		settings: settings,
		status:   status,
		analysis: analysis,
		queue:    queue,
	}
}

// Connect registers a GitHub repository
// POST /api/projects/connect
func (h *ProjectHandler) Connect(c *gin.Context) {
	var req services.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, created, err := h.projects.Connect(c.Request.Context(), &req, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, http.StatusBadGateway)
		return
	}
	if created {
		response.Created(c, project)
		return
	}
	response.Success(c, project)
}

// List returns the caller's projects
// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var req services.ProjectListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.projects.List(c.Request.Context(), &req, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, resp)
}

// GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	project, err := h.projects.Authorize(c.Request.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, project)
}

// PUT /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projects.Update(c.Request.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c), &req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, project)
}

// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c)); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, gin.H{"message": "project deleted"})
}

// Analyze runs an analysis pass. With ?async=true the run is queued and
// the request returns 202 with the task id.
// POST /api/projects/:id/analyze
func (h *ProjectHandler) Analyze(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)
	if _, err := h.projects.Authorize(c.Request.Context(), id, userID, middleware.IsAdmin(c)); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async && h.queue != nil {
		taskID, err := h.queue.Enqueue(services.NewAnalysisTask(id, &userID))
		if err != nil {
			respondError(c, err, http.StatusInternalServerError)
			return
		}
		response.Accepted(c, gin.H{"task_id": taskID, "async": h.queue.IsAsync()})
		return
	}

	result, err := h.analysis.Analyze(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, http.StatusBadGateway)
		return
	}
	response.Success(c, result)
}

// GET /api/projects/:id/review-settings
func (h *ProjectHandler) GetReviewSettings(c *gin.Context) {
	id, ok := h.authorized(c)
	if !ok {
		return
	}
	settings, err := h.settings.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, settings)
}

// PUT /api/projects/:id/review-settings
func (h *ProjectHandler) UpdateReviewSettings(c *gin.Context) {
	id, ok := h.authorized(c)
	if !ok {
		return
	}
	var req services.UpdateReviewSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	settings, err := h.settings.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, settings)
}

// GET /api/projects/:id/pr-reviews
func (h *ProjectHandler) ListPRReviews(c *gin.Context) {
	id, ok := h.authorized(c)
	if !ok {
		return
	}
	var req services.PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	resp, err := h.status.ListReviews(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, resp)
}

// GET /api/projects/:id/test-runs
func (h *ProjectHandler) ListTestRuns(c *gin.Context) {
	id, ok := h.authorized(c)
	if !ok {
		return
	}
	var req services.PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	resp, err := h.status.ListTestRuns(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, resp)
}

// PRStatus returns check runs and comments of one PR
// GET /api/projects/:id/pulls/:number/status
func (h *ProjectHandler) PRStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		response.BadRequest(c, "invalid number")
		return
	}
	project, err := h.projects.Authorize(c.Request.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	status, err := h.status.CIStatus(c.Request.Context(), project, number)
	if err != nil {
		respondError(c, err, http.StatusBadGateway)
		return
	}
	response.Success(c, status)
}

// GET /api/github/rate-limit
func (h *ProjectHandler) RateLimit(c *gin.Context) {
	rl, err := h.status.RateLimit(c.Request.Context())
	if err != nil {
		respondError(c, err, http.StatusBadGateway)
		return
	}
	response.Success(c, rl)
}

func (h *ProjectHandler) authorized(c *gin.Context) (uint, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return 0, false
	}
	if _, err := h.projects.Authorize(c.Request.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c)); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return 0, false
	}
	return id, true
}
