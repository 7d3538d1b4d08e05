package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"infobot-backend/internal/models"
	"infobot-backend/internal/services"
)

type UserHandler struct {
	engine *services.Engine
}

func NewUserHandler(engine *services.Engine) *UserHandler {
	return &UserHandler{engine: engine}
}

type firstContactRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Name   string `json:"name"`
}

func (h *UserHandler) FirstContact(c *gin.Context) {
	var req firstContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	acct, created, err := h.engine.OnFirstContact(c.Request.Context(), req.UserID, req.Name)
	if err != nil {
		respondError(c, "Failed to register user", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"account": acct,
		"created": created,
	})
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	profile, err := h.engine.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "Failed to load profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type searchRequest struct {
	Name string `json:"name"`
	Term string `json:"term" binding:"required"`
}

func (h *UserHandler) Search(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	outcome, err := h.engine.Search(c.Request.Context(), userID, req.Name, req.Term)
	if err != nil {
		respondError(c, "Search failed", err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *UserHandler) Spend(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	balance, err := h.engine.TrySpendForSearch(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "Spend rejected", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

type searchOutcomeRequest struct {
	Term      string          `json:"term" binding:"required"`
	Succeeded bool            `json:"succeeded"`
	Payload   json.RawMessage `json:"payload"`
}

func (h *UserHandler) RecordSearch(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req searchOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	rec, err := h.engine.RecordSearchOutcome(c.Request.Context(), userID, req.Term, req.Succeeded, req.Payload)
	if err != nil {
		respondError(c, "Failed to record search", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *UserHandler) History(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	page, err := h.engine.GetHistory(c.Request.Context(), userID,
		queryInt(c, "page", 1), queryInt(c, "page_size", services.DefaultPageSize))
	if err != nil {
		respondError(c, "Failed to load history", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *UserHandler) ClaimDaily(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	result, err := h.engine.ClaimDailyBonus(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "Daily bonus not granted", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *UserHandler) DailyStatus(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	status, err := h.engine.BonusStatus(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "Failed to load daily bonus status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled":          status.Enabled,
		"claimed_today":    status.ClaimedToday,
		"amount":           status.Amount,
		"streak":           status.Streak,
		"next_claim_after": int64(status.NextClaimAfter.Seconds()),
	})
}

func (h *UserHandler) Leaderboard(c *gin.Context) {
	sortBy := models.ParseSortBy(c.DefaultQuery("sort_by", string(models.SortByCredits)))

	entries, err := h.engine.GetLeaderboard(c.Request.Context(),
		queryInt(c, "limit", services.DefaultLeaderboardSize), sortBy)
	if err != nil {
		respondError(c, "Failed to load leaderboard", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sort_by": sortBy,
		"entries": entries,
	})
}

func (h *UserHandler) Settings(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetSettings())
}
