package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"infobot-backend/internal/metrics"
	"infobot-backend/internal/middleware"
	"infobot-backend/internal/services"
	"infobot-backend/internal/storage"
)

const healthTimeout = 2 * time.Second

type RouterOptions struct {
	Engine              *services.Engine
	JWT                 *services.JWTService
	Hub                 *WebSocketHub
	Store               storage.Store
	SearchRatePerMinute int
	ReferralGrace       time.Duration
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(opts RouterOptions) *gin.Engine {
	authHandler := NewAuthHandler(opts.JWT)
	userHandler := NewUserHandler(opts.Engine)
	referralHandler := NewReferralHandler(opts.Engine)
	adminHandler := NewAdminHandler(opts.Engine, opts.ReferralGrace)
	searchLimiter := middleware.NewRateLimiter(opts.SearchRatePerMinute)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS())

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := opts.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/auth/token", authHandler.IssueToken)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(opts.JWT))
	{
		protected.GET("/ws", opts.Hub.HandleWebSocket)

		protected.POST("/users", userHandler.FirstContact)
		protected.POST("/referrals", referralHandler.Process)
		protected.GET("/leaderboard", userHandler.Leaderboard)
		protected.GET("/settings", userHandler.Settings)

		users := protected.Group("/users/:id")
		{
			users.GET("/profile", userHandler.GetProfile)
			users.POST("/search", searchLimiter.Handler(), userHandler.Search)
			users.POST("/spend", searchLimiter.Handler(), userHandler.Spend)
			users.POST("/searches", userHandler.RecordSearch)
			users.GET("/history", userHandler.History)
			users.POST("/daily", userHandler.ClaimDaily)
			users.GET("/daily", userHandler.DailyStatus)
		}

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRole(services.RoleAdmin))
		{
			admin.GET("/analytics", adminHandler.Analytics)
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/search", adminHandler.FindUsers)
			admin.POST("/users/:id/credits", adminHandler.AdjustCredits)
			admin.POST("/users/:id/ban", adminHandler.SetBan)
			admin.PUT("/settings/:key", adminHandler.UpdateSetting)
			admin.POST("/tasks", adminHandler.BeginTask)
			admin.POST("/tasks/input", adminHandler.SubmitTask)
			admin.DELETE("/tasks", adminHandler.CancelTask)
			admin.POST("/referrals/reconcile", adminHandler.ReconcileReferrals)
		}
	}

	return router
}
