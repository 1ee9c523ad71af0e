package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/prepdeck/prepdeck-backend/internal/config"
	"github.com/prepdeck/prepdeck-backend/internal/handler"
	"github.com/prepdeck/prepdeck-backend/internal/middleware"
	"github.com/prepdeck/prepdeck-backend/internal/response"
	"github.com/prepdeck/prepdeck-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam *handler.ExamHandler
	WS   *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for exam routes (20 req/s per IP, burst 40). Generous
	// enough for navigation bursts, tight enough to stop scripted abuse.
	examLimiter := middleware.NewRateLimiter(20, 40)

	// ─── Exam Group (JWT) ──────────────────────────────────────────────
	examAPI := router.Group("/api/v1/exam")
	examAPI.Use(
		middleware.RequireUserJWT(authService),
		examLimiter.Middleware(),
	)
	{
		examAPI.POST("/start", handlers.Exam.StartExam)
		examAPI.GET("/active", handlers.Exam.ActiveAttempt)
		examAPI.GET("/resume/:session_id", handlers.Exam.ResumeExam)
		examAPI.POST("/:session_id/answer", handlers.Exam.RecordAnswer)
		examAPI.POST("/:session_id/navigate", handlers.Exam.Navigate)
		examAPI.POST("/autosave", handlers.Exam.Autosave)
		examAPI.POST("/submit", handlers.Exam.SubmitExam)
		examAPI.GET("/result/:result_id", handlers.Exam.GetResult)
		examAPI.GET("/history", handlers.Exam.History)
	}

	// ─── WebSocket Group (WS Auth) ─────────────────────────────────────
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(middleware.RequireUserWSAuth(authService))
	{
		wsGroup.GET("/exam/:session_id/stream", handlers.WS.ExamStream)
	}

	return router
}
