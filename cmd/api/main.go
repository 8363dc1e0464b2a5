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

	_ "github.com/classmark/attendance-api/api/swagger"
	"github.com/classmark/attendance-api/internal/handler"
	"github.com/classmark/attendance-api/internal/middleware"
	"github.com/classmark/attendance-api/internal/models"
	"github.com/classmark/attendance-api/internal/repository"
	"github.com/classmark/attendance-api/internal/service"
	"github.com/classmark/attendance-api/pkg/cache"
	"github.com/classmark/attendance-api/pkg/config"
	"github.com/classmark/attendance-api/pkg/database"
	"github.com/classmark/attendance-api/pkg/export"
	"github.com/classmark/attendance-api/pkg/logger"
	corsmiddleware "github.com/classmark/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classmark/attendance-api/pkg/middleware/requestid"
)

// @title Classmark Attendance API
// @version 1.0.0
// @description Attendance webservice for taking and reviewing class sessions
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
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Attendance.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Attendance.TodaySessionsTTL, logr, cacheRepo != nil)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	tagRepo := repository.NewTagRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})

	settingDefaults := map[string]string{
		models.SettingKeyTagFieldID: cfg.Attendance.TagFieldID,
	}
	settingSvc := service.NewSettingService(settingRepo, auditRepo, cacheSvc, cfg.Attendance.SettingsCacheTTL, settingDefaults, logr)

	attendanceSvc := service.NewAttendanceService(courseRepo, sessionRepo, rosterRepo, tagRepo,
		settingSvc, auditRepo, cacheSvc, cfg.Attendance.TodaySessionsTTL, validate, logr)

	exportSvc := service.NewExportService(attendanceSvc, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	authHandler := handler.NewAuthHandler(authSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, exportSvc)
	settingHandler := handler.NewSettingHandler(settingSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	attendance := api.Group("/attendance", middleware.JWT(authSvc))
	attendance.GET("/users/:id/today-sessions", attendanceHandler.ListTodaySessions)
	attendance.GET("/sessions/:id", attendanceHandler.GetSessionDetail)
	attendance.PUT("/sessions/:id/status", attendanceHandler.RecordStatus)
	attendance.GET("/sessions/:id/export", attendanceHandler.ExportSessionSheet)
	attendance.POST("/tags", attendanceHandler.AssociateTag)

	settings := api.Group("/settings", middleware.JWT(authSvc))
	settings.GET("/:key", settingHandler.Get)
	settings.PUT("/:key", settingHandler.Update)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
