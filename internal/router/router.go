package router

import (
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Report  *handler.ReportHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// reportLimiter may be nil to leave report submission unlimited.
func SetupRouter(handlers *Handlers, reportLimiter *middleware.RateLimiter, cfg *config.Config) *gin.Engine {
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
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli(brotli.DefaultCompression, middleware.DefaultMinCompressLength))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. REST API ───────────────────────────────────────────────────
	api := router.Group("/api/v1")
	{
		exams := api.Group("/exams")
		{
			exams.GET("/:id", middleware.CacheControl(60), handlers.Exam.GetExam)
			exams.GET("/:id/reports", middleware.NoStore(), handlers.Exam.GetExamReports)
			exams.GET("/:id/monitor", handlers.Monitor.MonitorExamSSE)
		}

		reports := []gin.HandlerFunc{middleware.NoStore()}
		if reportLimiter != nil {
			reports = append(reports, reportLimiter.Middleware())
		}
		reports = append(reports, handlers.Report.SubmitReport)
		api.POST("/reports", reports...)

		api.GET("/system/status", middleware.NoStore(), handlers.System.Status)
	}

	// ─── 2. WebSocket rooms ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/exams/:exam_id/room", handlers.WS.ExamRoom)
	}

	return router
}
