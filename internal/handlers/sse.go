package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/internal/utils"
	"github.com/huangang/codemender/pkg/logger"
	"github.com/huangang/codemender/pkg/response"
)

// SSEHandler streams ledger events. EventSource cannot set headers, so the
// token may also come from the query string.
type SSEHandler struct {
	hub      *services.SSEHub
	projects *services.ProjectService
}

func NewSSEHandler(hub *services.SSEHub, projects *services.ProjectService) *SSEHandler {
	return &SSEHandler{hub: hub, projects: projects}
}

func bearerOrQueryToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// StreamLedgerEvents
// GET /api/events/ledger
func (h *SSEHandler) StreamLedgerEvents(c *gin.Context) {
	token := bearerOrQueryToken(c)
	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}
	isAdmin := claims.Role == models.RoleAdmin

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Uint("user_id", claims.UserID).Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	// Ownership per project, resolved on first sight.
	visible := make(map[uint]bool)
	canSee := func(projectID uint) bool {
		if isAdmin {
			return true
		}
		ok, seen := visible[projectID]
		if !seen {
			_, err := h.projects.Authorize(c.Request.Context(), projectID, claims.UserID, false)
			ok = err == nil
			visible[projectID] = ok
		}
		return ok
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			if !canSee(event.ProjectID) {
				return true
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
