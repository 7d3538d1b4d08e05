package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"infobot-backend/internal/services"
)

type AuthHandler struct {
	jwtService *services.JWTService
}

func NewAuthHandler(jwtService *services.JWTService) *AuthHandler {
	return &AuthHandler{jwtService: jwtService}
}

type tokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
	// AdminID identifies the chat admin behind an admin token.
	AdminID int64 `json:"admin_id"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	role, err := h.jwtService.RoleForKey(req.APIKey)
	if err != nil {
		logrus.WithField("ip", c.ClientIP()).Warn("Token requested with invalid api key")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid api key"})
		return
	}

	adminID := int64(0)
	if role == services.RoleAdmin {
		adminID = req.AdminID
	}

	token, expiresAt, err := h.jwtService.GenerateToken(role, adminID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"role":       role,
		"expires_at": expiresAt,
	})
}
