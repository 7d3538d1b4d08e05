package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"infobot-backend/internal/models"
	"infobot-backend/internal/services"
)

type ReferralHandler struct {
	engine *services.Engine
}

func NewReferralHandler(engine *services.Engine) *ReferralHandler {
	return &ReferralHandler{engine: engine}
}

type referralRequest struct {
	NewUserID  int64  `json:"new_user_id" binding:"required,gt=0"`
	ReferrerID int64  `json:"referrer_id" binding:"required,gt=0"`
	Name       string `json:"name"`
	IsBot      bool   `json:"is_bot"`
}

// Process applies the boundary policy before the referral engine runs:
// members cannot refer themselves and bots are never counted.
func (h *ReferralHandler) Process(c *gin.Context) {
	var req referralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	switch {
	case req.IsBot:
		respondError(c, "Referral rejected", models.ErrBotReferral)
		return
	case req.NewUserID == req.ReferrerID:
		respondError(c, "Referral rejected", models.ErrSelfReferral)
		return
	}

	result, err := h.engine.ProcessReferral(c.Request.Context(), req.NewUserID, req.ReferrerID, req.Name)
	if err != nil {
		respondError(c, "Referral failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
