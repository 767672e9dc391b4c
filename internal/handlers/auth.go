package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/middleware"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/pkg/response"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pair, err := h.authService.Login(&req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		services.LogWarning("Auth", "Login", "login failed for "+req.Username+": "+err.Error(), nil, c.ClientIP(), c.Request.UserAgent(), nil)
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	services.LogInfo("Auth", "Login", "user "+req.Username+" logged in", &pair.User.ID, c.ClientIP(), c.Request.UserAgent(), nil)
	response.Success(c, pair)
}

// Register creates an account. The first account becomes an admin.
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.authService.Register(&req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Created(c, user)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh token into a new token pair
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pair, err := h.authService.Refresh(req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, pair)
}

// GetCurrentUser returns the current logged-in user
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.authService.GetUserByID(middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, user)
}

// Logout revokes the refresh token when one is supplied; the access token
// simply expires.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		if err := h.authService.RevokeRefreshToken(req.RefreshToken); err != nil {
			respondError(c, err, http.StatusInternalServerError)
			return
		}
	}
	response.Success(c, gin.H{"message": "logged out successfully"})
}

// ChangePassword
// PUT /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	if err := h.authService.ChangePassword(userID, &req); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	services.LogInfo("Auth", "ChangePassword", "password changed", &userID, c.ClientIP(), c.Request.UserAgent(), nil)
	response.Success(c, gin.H{"message": "password changed"})
}
