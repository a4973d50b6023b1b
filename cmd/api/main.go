package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/hakwonhub/hakwon-api/api/swagger"
	"github.com/hakwonhub/hakwon-api/internal/handler"
	"github.com/hakwonhub/hakwon-api/internal/middleware"
	"github.com/hakwonhub/hakwon-api/internal/models"
	"github.com/hakwonhub/hakwon-api/internal/repository"
	"github.com/hakwonhub/hakwon-api/internal/service"
	"github.com/hakwonhub/hakwon-api/pkg/cache"
	"github.com/hakwonhub/hakwon-api/pkg/config"
	"github.com/hakwonhub/hakwon-api/pkg/database"
	"github.com/hakwonhub/hakwon-api/pkg/jobs"
	"github.com/hakwonhub/hakwon-api/pkg/logger"
	corsmiddleware "github.com/hakwonhub/hakwon-api/pkg/middleware/cors"
	reqidmiddleware "github.com/hakwonhub/hakwon-api/pkg/middleware/requestid"
)

// @title Hakwon API
// @version 1.0.0
// @description Academy enrollment and administration service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis backs the course cache and the change feed, both optional.
		logr.Sugar().Warnw("redis unavailable, cache and feed disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classRepo := repository.NewClassRepository(db)
	seasonRepo := repository.NewSeasonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsService := service.NewMetricsService()
	feedService := service.NewFeedService(redisClient, service.FeedConfig{
		Enabled:       cfg.Feed.Enabled,
		ChannelPrefix: cfg.Feed.ChannelPrefix,
		ClientBuffer:  cfg.Feed.ClientBuffer,
	}, logr)
	notificationService := service.NewNotificationService(notificationRepo, feedService, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.QueueSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, logr)

	authService := service.NewAuthService(userRepo, studentRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		StudentTokenExpiry: cfg.JWT.StudentExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	studentService := service.NewStudentService(studentRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, cacheRepo, auditRepo, metricsService, cfg.Courses.CacheTTL, validate, logr)
	classService := service.NewClassService(classRepo, validate, logr)
	seasonService := service.NewSeasonService(seasonRepo, validate, logr)
	conflictService := service.NewConflictService(enrollmentRepo, courseRepo, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, studentRepo, courseRepo,
		notificationService, feedService, auditRepo, metricsService, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, courseRepo, validate, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notificationService.Start(rootCtx)
	defer notificationService.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	studentHandler := handler.NewStudentHandler(studentService)
	courseHandler := handler.NewCourseHandler(courseService)
	classHandler := handler.NewClassHandler(classService)
	seasonHandler := handler.NewSeasonHandler(seasonService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService, conflictService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService)
	feedHandler := handler.NewFeedHandler(feedService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	adminOnly := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	anyRole := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleStudent)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/student-login", authHandler.StudentLogin)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.PUT("/password", middleware.JWT(authService), adminOnly, authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	students := api.Group("/students", middleware.JWT(authService))
	{
		students.GET("", adminOnly, studentHandler.List)
		students.GET("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), "SELF"), studentHandler.Get)
		students.POST("", adminOnly, studentHandler.Create)
		students.POST("/batch", adminOnly, studentHandler.CreateBatch)
		students.PUT("/:id", adminOnly, studentHandler.Update)
		students.PUT("/:id/class", adminOnly, studentHandler.AssignClass)
		students.DELETE("/:id", adminOnly, studentHandler.Delete)
	}

	courses := api.Group("/courses", middleware.JWT(authService))
	{
		courses.GET("", anyRole, courseHandler.List)
		courses.GET("/:id", anyRole, courseHandler.Get)
		courses.POST("", adminOnly, courseHandler.Create)
		courses.PUT("/:id", adminOnly, courseHandler.Update)
		courses.DELETE("/:id", adminOnly, courseHandler.Delete)
		courses.POST("/:id/recount", adminOnly, courseHandler.Recount)

		courses.POST("/:id/attendance", adminOnly, attendanceHandler.Mark)
		courses.GET("/:id/attendance", adminOnly, attendanceHandler.Roster)
		courses.GET("/:id/attendance/:studentId", adminOnly, attendanceHandler.Summary)
	}

	classes := api.Group("/classes", middleware.JWT(authService), adminOnly)
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.POST("", classHandler.Create)
		classes.PUT("/:id", classHandler.Update)
		classes.DELETE("/:id", classHandler.Delete)
	}

	seasons := api.Group("/seasons", middleware.JWT(authService))
	{
		seasons.GET("", anyRole, seasonHandler.List)
		seasons.GET("/active", anyRole, seasonHandler.GetActive)
		seasons.GET("/:id", anyRole, seasonHandler.Get)
		seasons.POST("", adminOnly, seasonHandler.Create)
		seasons.PUT("/:id", adminOnly, seasonHandler.Update)
		seasons.PUT("/:id/activate", adminOnly, seasonHandler.Activate)
		seasons.DELETE("/:id", adminOnly, seasonHandler.Delete)
	}

	enrollments := api.Group("/enrollments", middleware.JWT(authService))
	{
		enrollments.GET("", anyRole, enrollmentHandler.List)
		enrollments.GET("/:id", anyRole, enrollmentHandler.Get)
		enrollments.POST("", anyRole, enrollmentHandler.Submit)
		enrollments.POST("/check-conflicts", anyRole, enrollmentHandler.CheckConflicts)
		enrollments.PUT("/:id/approve", adminOnly, enrollmentHandler.Approve)
		enrollments.PUT("/:id/reject", adminOnly, enrollmentHandler.Reject)
		enrollments.DELETE("/:id", anyRole, enrollmentHandler.Cancel)
		enrollments.POST("/cancel-batch", adminOnly, enrollmentHandler.CancelBatch)
	}

	notifications := api.Group("/notifications", middleware.JWT(authService))
	{
		notifications.GET("", anyRole, notificationHandler.List)
		notifications.PUT("/:id/read", anyRole, notificationHandler.MarkRead)
		notifications.PUT("/read-all", anyRole, notificationHandler.MarkAllRead)
	}

	api.GET("/feed", middleware.JWT(authService), anyRole, feedHandler.Stream)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
