package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/obe-analytics-api/api/swagger"
	"github.com/noah-isme/obe-analytics-api/internal/handler"
	"github.com/noah-isme/obe-analytics-api/internal/middleware"
	"github.com/noah-isme/obe-analytics-api/internal/repository"
	"github.com/noah-isme/obe-analytics-api/internal/service"
	"github.com/noah-isme/obe-analytics-api/pkg/cache"
	"github.com/noah-isme/obe-analytics-api/pkg/config"
	"github.com/noah-isme/obe-analytics-api/pkg/database"
	"github.com/noah-isme/obe-analytics-api/pkg/export"
	"github.com/noah-isme/obe-analytics-api/pkg/jobs"
	"github.com/noah-isme/obe-analytics-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/obe-analytics-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/obe-analytics-api/pkg/middleware/requestid"
	"github.com/noah-isme/obe-analytics-api/pkg/storage"
)

// @title OBE Analytics API
// @version 1.0.0
// @description Weighted marks to Bloom's taxonomy distribution and outcome attainment analytics
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Analytics.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close() //nolint:errcheck
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Analytics.CacheTTL, logr, true)
	}

	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	weightageRepo := repository.NewWeightageRepository(db)
	outcomeRepo := repository.NewOutcomeRepository(db)
	marksRepo := repository.NewMarksRepository(db)
	distributionRepo := repository.NewDistributionRepository(db)

	distributionService := service.NewDistributionService(
		studentRepo, weightageRepo, outcomeRepo, marksRepo, distributionRepo,
		cacheService, metricsService, cfg.Marks.MaxSubjectScore, logr)
	analyticsService := service.NewAnalyticsService(
		studentRepo, outcomeRepo, distributionRepo,
		cacheService, metricsService,
		cfg.Marks.MaxSubjectScore, cfg.Marks.AttainmentThreshold, logr)

	recomputeQueue := jobs.NewQueue("distribution-recompute", distributionService.HandleRecomputeJob, jobs.QueueConfig{
		Workers:    cfg.Distribution.WorkerConcurrency,
		BufferSize: cfg.Distribution.QueueSize,
		MaxRetries: cfg.Distribution.WorkerRetries,
		RetryDelay: cfg.Distribution.RetryDelay,
		Logger:     logr,
	})

	marksService := service.NewMarksService(studentRepo, subjectRepo, marksRepo, recomputeQueue, validator.New(), logr)

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportService := service.NewExportService(analyticsService, exportStorage, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter())

	distributionHandler := handler.NewDistributionHandler(distributionService, analyticsService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, exportService)
	marksHandler := handler.NewMarksHandler(marksService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/blooms-distribution/calculate/:enrollmentNumber/:semesterNumber", distributionHandler.Calculate)
		api.GET("/blooms-distribution/stored/:enrollmentNumber/:semesterNumber", distributionHandler.Stored)

		api.GET("/analytics/blooms/detailed/:enrollmentNumber/:semesterNumber", analyticsHandler.Detailed)
		api.GET("/analytics/blooms/detailed/:enrollmentNumber/:semesterNumber/:subjectCode", analyticsHandler.Detailed)
		api.GET("/analytics/blooms/compare/:batchId/:semesterNumber", analyticsHandler.Compare)
		api.GET("/analytics/blooms/compare/:batchId/:semesterNumber/:subjectCode", analyticsHandler.Compare)
		api.GET("/analytics/co-attainment/:subjectCode/:batchId/:semesterNumber", analyticsHandler.COAttainment)
		api.GET("/analytics/co-attainment/:subjectCode/:batchId/:semesterNumber/export", analyticsHandler.ExportAttainment)
		api.GET("/analytics/exports/:token", analyticsHandler.Download)
		api.GET("/analytics/system", analyticsHandler.System)

		api.GET("/blooms-taxonomy", analyticsHandler.BloomsLevels)

		api.PUT("/student-marks/:enrollmentNumber/:subjectCode", marksHandler.Update)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recomputeQueue.Start(ctx)
	defer recomputeQueue.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
