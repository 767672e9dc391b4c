package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/pkg/response"
)

// respondError maps service sentinels to HTTP statuses. Anything else is
// answered with fallback, which is 502 for calls that depend on GitHub or
// an LLM and 500 otherwise.
func respondError(c *gin.Context, err error, fallback int) {
	msg := err.Error()
	switch {
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrIssueNotFound),
		errors.Is(err, services.ErrIMBotNotFound),
		errors.Is(err, services.ErrLLMConfigNotFound),
		errors.Is(err, services.ErrUserNotFound):
		response.Error(c, response.NewNotFound(msg))
	case errors.Is(err, services.ErrForbidden):
		response.Error(c, response.NewForbidden(msg))
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrAnalysisInProgress),
		errors.Is(err, services.ErrAmbiguousIssuePrefix),
		errors.Is(err, services.ErrUsernameTaken):
		response.Error(c, response.NewConflict(msg))
	case errors.Is(err, services.ErrInvalidThreshold),
		errors.Is(err, services.ErrInvalidRepoURL),
		errors.Is(err, services.ErrIncorrectPassword):
		response.Error(c, response.NewBadRequest(msg))
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidRefreshToken),
		errors.Is(err, services.ErrUserDisabled):
		response.Error(c, response.NewUnauthorized(msg))
	case errors.Is(err, services.ErrNoCodeFiles),
		errors.Is(err, services.ErrNoCodeChange):
		response.Error(c, &response.AppError{HTTPStatus: http.StatusUnprocessableEntity, Code: 422, Message: msg})
	case fallback == http.StatusBadGateway:
		response.Error(c, response.NewBadGateway(msg))
	default:
		response.Error(c, response.NewServerError(msg))
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
