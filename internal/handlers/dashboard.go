package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/middleware"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/pkg/response"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// GetStats returns per-project health and ledger totals for the caller
// GET /api/dashboard/stats
func (h *DashboardHandler) GetStats(c *gin.Context) {
	resp, err := h.dashboardService.GetStats(c.Request.Context(), middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, resp)
}
