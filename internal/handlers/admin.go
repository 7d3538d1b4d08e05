package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"infobot-backend/internal/models"
	"infobot-backend/internal/services"
)

const reconcileLimit = 500

type AdminHandler struct {
	engine *services.Engine
	grace  time.Duration
}

func NewAdminHandler(engine *services.Engine, grace time.Duration) *AdminHandler {
	return &AdminHandler{engine: engine, grace: grace}
}

func (h *AdminHandler) Analytics(c *gin.Context) {
	analytics, err := h.engine.AdminGetAnalytics(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to build analytics", err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", services.DefaultPageSize)

	users, total, err := h.engine.AdminListUsers(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, "Failed to list users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"total": total,
		"page":  page,
	})
}

func (h *AdminHandler) FindUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return
	}

	users, err := h.engine.AdminFindUsers(c.Request.Context(), query)
	if err != nil {
		respondError(c, "User search failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type adjustRequest struct {
	Delta int64 `json:"delta" binding:"required"`
}

func (h *AdminHandler) AdjustCredits(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	acct, err := h.engine.AdminAdjustCredits(c.Request.Context(), userID, req.Delta)
	if err != nil {
		respondError(c, "Failed to adjust credits", err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"admin_id": c.GetInt64("admin_id"),
		"user_id":  userID,
		"delta":    req.Delta,
	}).Info("Admin adjusted credits")

	c.JSON(http.StatusOK, acct)
}

type banRequest struct {
	Banned *bool `json:"banned" binding:"required"`
}

func (h *AdminHandler) SetBan(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	acct, err := h.engine.AdminSetBan(c.Request.Context(), userID, *req.Banned)
	if err != nil {
		respondError(c, "Failed to change ban state", err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

type settingRequest struct {
	Value string `json:"value" binding:"required"`
}

func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	settings, err := h.engine.UpdateSetting(c.Request.Context(), models.SettingKey(c.Param("key")), req.Value)
	if err != nil {
		respondError(c, "Setting not updated", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type beginTaskRequest struct {
	Kind     models.TaskKind `json:"kind" binding:"required"`
	TargetID int64           `json:"target_id"`
}

func (h *AdminHandler) BeginTask(c *gin.Context) {
	var req beginTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	task, err := h.engine.Tasks().Begin(c.Request.Context(), c.GetInt64("admin_id"), req.Kind, req.TargetID)
	if err != nil {
		respondError(c, "Task not started", err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

type taskInputRequest struct {
	Input string `json:"input" binding:"required"`
}

func (h *AdminHandler) SubmitTask(c *gin.Context) {
	var req taskInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := h.engine.Tasks().Submit(c.Request.Context(), c.GetInt64("admin_id"), req.Input)
	if err != nil {
		respondError(c, "Task failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AdminHandler) CancelTask(c *gin.Context) {
	cancelled := h.engine.Tasks().Cancel(c.GetInt64("admin_id"))
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

func (h *AdminHandler) ReconcileReferrals(c *gin.Context) {
	paid, err := h.engine.Referrals().Reconcile(c.Request.Context(), h.grace, reconcileLimit)
	if err != nil {
		respondError(c, "Referral reconciliation failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewarded": paid})
}
