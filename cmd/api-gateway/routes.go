package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-export/api/swagger"
	"github.com/noah-isme/course-export/internal/handler"
	"github.com/noah-isme/course-export/internal/middleware"
	"github.com/noah-isme/course-export/internal/service"
	"github.com/noah-isme/course-export/pkg/config"
	"github.com/noah-isme/course-export/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-export/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-export/pkg/middleware/requestid"
)

type routeDeps struct {
	logger  *zap.Logger
	metrics *service.MetricsService
	exports *handler.ExportHandler
	reports *handler.ReportHandler
	health  *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, deps routeDeps) {
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Signed downloads authenticate through the token itself.
	api.GET("/export/:token", deps.exports.Download)

	secured := api.Group("")
	secured.Use(middleware.Bearer(cfg.Backend.Token != ""))
	secured.POST("/courses/:id/export", deps.exports.ExportCourse)
	secured.GET("/courses/:id/report", deps.reports.CourseReport)
	secured.GET("/courses/:id/analytics", deps.reports.CourseAnalytics)
	secured.GET("/courses/:id/students/:studentId/attendance-report", deps.reports.AttendanceReport)
	secured.GET("/quiz-entries/export", deps.reports.QuizExport)
	secured.POST("/exports", deps.exports.CreateJob)
	secured.GET("/exports/:id", deps.exports.JobStatus)
}
