package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the process and its dependencies.
type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if q := services.GetTaskQueue(); q != nil && q.IsAsync() {
		queueMode = "async (Redis)"
	}

	var pendingMerges int64
	if dbStatus == "ok" {
		h.db.Model(&models.PRReview{}).Where("action = ?", models.PRActionPending).Count(&pendingMerges)
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "codemender",
		"components": gin.H{
			"database":       dbStatus,
			"queue_mode":     queueMode,
			"sse_clients":    services.GetSSEHub().ClientCount(),
			"pending_merges": pendingMerges,
		},
	})
}
