package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/internal/services/webhook"
	"github.com/huangang/codemender/pkg/logger"
	"github.com/huangang/codemender/pkg/response"
)

// maxWebhookBody caps a delivery; GitHub itself stops at 25 MB.
const maxWebhookBody = 25 << 20

// GitHubEventHandler runs one verified GitHub delivery.
type GitHubEventHandler interface {
	HandleGitHubWebhook(ctx context.Context, eventType string, body []byte) (*webhook.Outcome, error)
}

type WebhookHandler struct {
	router  GitHubEventHandler
	ghCfg   config.GitHubConfig
	release bool
}

func NewWebhookHandler(router GitHubEventHandler, ghCfg config.GitHubConfig, release bool) *WebhookHandler {
	return &WebhookHandler{router: router, ghCfg: ghCfg, release: release}
}

// HandleGitHub verifies and dispatches a GitHub delivery
// POST /api/webhooks/github
func (h *WebhookHandler) HandleGitHub(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}

	eventType := c.GetHeader("X-GitHub-Event")
	if !h.verify(c, body) {
		return
	}

	logger.Info().
		Str("event", eventType).
		Str("delivery", c.GetHeader("X-GitHub-Delivery")).
		Msg("[Webhook] GitHub delivery received")

	outcome, err := h.router.HandleGitHubWebhook(c.Request.Context(), eventType, body)
	if err != nil {
		if errors.Is(err, webhook.ErrBadPayload) {
			response.BadRequest(c, err.Error())
			return
		}
		services.LogError("Webhook", "ReviewFailed", err.Error(), nil, c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
			"event_type": eventType,
		})
		response.ServerError(c, err.Error())
		return
	}

	if outcome.Skipped != "" {
		c.JSON(http.StatusOK, gin.H{"skipped": outcome.Skipped})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *WebhookHandler) verify(c *gin.Context, body []byte) bool {
	if h.ghCfg.SkipSignatureVerification && !h.release {
		logger.Warn().Msg("[Webhook] signature verification skipped (debug mode)")
		return true
	}

	if h.ghCfg.WebhookSecret == "" {
		if h.release {
			response.Unauthorized(c, "webhook secret is not configured")
			return false
		}
		logger.Warn().Msg("[Webhook] no webhook secret configured, accepting unsigned delivery")
		return true
	}

	if !webhook.VerifyGitHubSignature(h.ghCfg.WebhookSecret, body, c.GetHeader("X-Hub-Signature-256")) {
		services.LogWarning("Webhook", "InvalidSignature", "invalid GitHub webhook signature", nil, c.ClientIP(), c.Request.UserAgent(), nil)
		response.Unauthorized(c, "invalid signature")
		return false
	}
	return true
}
