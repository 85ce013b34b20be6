package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/openacademy-api/internal/handler"
	"github.com/noah-isme/openacademy-api/internal/middleware"
	"github.com/noah-isme/openacademy-api/internal/service"
	"github.com/noah-isme/openacademy-api/pkg/config"
	"github.com/noah-isme/openacademy-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/openacademy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/openacademy-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *service.MetricsService
	courses  *handler.CourseHandler
	sessions *handler.SessionHandler
	partners *handler.PartnerHandler
	health   *handler.MetricsHandler
}

func newRouter(d routerDeps) *gin.Engine {
	metricsPath := d.cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	quiet := []string{"/health", "/ready", metricsPath}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger, quiet...))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics, quiet...))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", d.health.Health)
	r.GET("/ready", d.health.Ready)
	if d.cfg.Metrics.Enabled {
		r.GET(metricsPath, d.health.Prometheus)
	}
	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(d.cfg.APIPrefix)

	courses := api.Group("/courses")
	courses.GET("", d.courses.List)
	courses.POST("", d.courses.Create)
	courses.GET("/:id", d.courses.Get)
	courses.PUT("/:id", d.courses.Update)
	courses.DELETE("/:id", d.courses.Delete)
	courses.POST("/:id/duplicate", d.courses.Duplicate)

	sessions := api.Group("/sessions")
	sessions.GET("", d.sessions.List)
	sessions.POST("", d.sessions.Create)
	sessions.PATCH("", d.sessions.UpdateBatch)
	sessions.POST("/preview", d.sessions.Preview)
	sessions.GET("/:id", d.sessions.Get)
	sessions.PUT("/:id", d.sessions.Update)
	sessions.DELETE("/:id", d.sessions.Delete)
	sessions.PUT("/:id/attendees", d.sessions.SetAttendees)
	sessions.POST("/:id/attendees", d.sessions.AddAttendees)
	sessions.DELETE("/:id/attendees/:partnerId", d.sessions.RemoveAttendee)
	sessions.GET("/:id/roster", d.sessions.Roster)

	partners := api.Group("/partners")
	partners.GET("", d.partners.List)
	partners.POST("", d.partners.Create)
	partners.GET("/:id", d.partners.Get)
	partners.PUT("/:id", d.partners.Update)
	partners.DELETE("/:id", d.partners.Delete)

	return r
}
