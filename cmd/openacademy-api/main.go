package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/openacademy-api/api/swagger"
	"github.com/noah-isme/openacademy-api/internal/handler"
	"github.com/noah-isme/openacademy-api/internal/repository"
	"github.com/noah-isme/openacademy-api/internal/service"
	"github.com/noah-isme/openacademy-api/pkg/cache"
	"github.com/noah-isme/openacademy-api/pkg/config"
	"github.com/noah-isme/openacademy-api/pkg/database"
	"github.com/noah-isme/openacademy-api/pkg/export"
	"github.com/noah-isme/openacademy-api/pkg/logger"
)

// @title OpenAcademy API
// @version 1.0.0
// @description Courses, sessions and partners of the OpenAcademy training module.
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	tx := database.NewTransactor(db)

	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, cfg.Cache.KeyPrefix, logr, cfg.Cache.Enabled && redisClient != nil)
	sessionSvc := service.NewSessionService(service.SessionServiceParams{
		Tx:        tx,
		Sessions:  sessionRepo,
		Courses:   courseRepo,
		Partners:  partnerRepo,
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	})
	courseSvc := service.NewCourseService(tx, courseRepo, sessionRepo, partnerRepo, cacheSvc, validate, logr)
	partnerSvc := service.NewPartnerService(service.PartnerServiceParams{
		Tx:        tx,
		Partners:  partnerRepo,
		Sessions:  sessionRepo,
		Courses:   courseRepo,
		Attendees: sessionSvc,
		Cache:     cacheSvc,
		Validator: validate,
		Logger:    logr,
	})
	rosterSvc := service.NewRosterService(sessionRepo, courseRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	deps := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		deps["redis"] = handler.PingFunc(cache.Pinger(redisClient))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metricsSvc.Handler()
	}

	router := newRouter(routerDeps{
		cfg:      cfg,
		logger:   logr,
		metrics:  metricsSvc,
		courses:  handler.NewCourseHandler(courseSvc),
		sessions: handler.NewSessionHandler(sessionSvc, rosterSvc),
		partners: handler.NewPartnerHandler(partnerSvc),
		health:   handler.NewMetricsHandler(metricsHandler, deps),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.Bool("cache", cacheSvc.Enabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
