package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/pkg/response"
)

// AIUsageHandler provides endpoints for AI usage statistics.
type AIUsageHandler struct {
	usageService *services.AIUsageService
}

func NewAIUsageHandler(usageService *services.AIUsageService) *AIUsageHandler {
	return &AIUsageHandler{usageService: usageService}
}

// GetByPurpose aggregates calls per purpose over the last `days` days
// (default 7).
// GET /api/ai-usage?days=7&project_id=1
func (h *AIUsageHandler) GetByPurpose(c *gin.Context) {
	days := 7
	if v := c.Query("days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 || d > 365 {
			response.BadRequest(c, "days must be between 1 and 365")
			return
		}
		days = d
	}

	var projectID *uint
	if v := c.Query("project_id"); v != "" {
		pid, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			response.BadRequest(c, "invalid project_id")
			return
		}
		p := uint(pid)
		projectID = &p
	}

	since := time.Now().AddDate(0, 0, -days)
	usage, err := h.usageService.GetUsageByPurpose(since, projectID)
	if err != nil {
		response.ServerError(c, "failed to get AI usage stats: "+err.Error())
		return
	}
	response.Success(c, gin.H{"days": days, "items": usage})
}
