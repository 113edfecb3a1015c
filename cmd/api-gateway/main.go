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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/friending/culture-dispatch-api/api/swagger"
	"github.com/friending/culture-dispatch-api/internal/handler"
	"github.com/friending/culture-dispatch-api/internal/middleware"
	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/internal/repository"
	"github.com/friending/culture-dispatch-api/internal/service"
	"github.com/friending/culture-dispatch-api/pkg/cache"
	"github.com/friending/culture-dispatch-api/pkg/config"
	"github.com/friending/culture-dispatch-api/pkg/database"
	"github.com/friending/culture-dispatch-api/pkg/jobs"
	"github.com/friending/culture-dispatch-api/pkg/logger"
	"github.com/friending/culture-dispatch-api/pkg/mailer"
	corsmiddleware "github.com/friending/culture-dispatch-api/pkg/middleware/cors"
	reqidmiddleware "github.com/friending/culture-dispatch-api/pkg/middleware/requestid"
	"github.com/friending/culture-dispatch-api/pkg/storage"
)

// @title Culture Dispatch API
// @version 1.0.0
// @description Staffing marketplace for culture center language courses
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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	store, err := storage.NewLocalStorage(cfg.Storage.AttachmentsDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init attachment storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	var sender mailer.Sender = mailer.NopSender{}
	if cfg.Mail.Enabled {
		sender = mailer.NewSMTPSender(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
	}

	userRepo := repository.NewUserRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	profileRepo := repository.NewTeacherProfileRepository(db)
	dispatchRepo := repository.NewDispatchRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metrics := service.NewMetricsService()

	notifications := service.NewNotificationService(sender, userRepo, profileRepo, logr, jobs.QueueConfig{
		Workers:    cfg.Mail.Workers,
		MaxRetries: cfg.Mail.MaxRetries,
		RetryDelay: cfg.Mail.RetryDelay,
		Logger:     logr,
	})

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	branchService := service.NewBranchService(branchRepo, cacheRepo, metrics, validate, logr, cfg.Directory.CacheTTL)
	profileService := service.NewTeacherProfileService(profileRepo, userRepo, store, signer, validate, logr)
	dispatchService := service.NewDispatchService(dispatchRepo, branchRepo, applicationRepo, notifications, userRepo, cacheRepo, metrics, validate, logr, cfg.Directory.CacheTTL)
	applicationService := service.NewApplicationService(applicationRepo, profileRepo, dispatchRepo, dispatchService, metrics, validate, logr)
	courseService := service.NewCourseService(assignmentRepo, courseRepo, dispatchRepo, profileRepo, notifications, dispatchService, userRepo, metrics, validate, logr)
	searchService := service.NewTeacherSearchService(profileRepo, branchRepo, logr, cfg.Geo.DefaultRadiusKm, cfg.Geo.MaxRadiusKm)

	authHandler := handler.NewAuthHandler(authService)
	branchHandler := handler.NewBranchHandler(branchService, searchService)
	profileHandler := handler.NewTeacherProfileHandler(profileService, cfg.Storage.MaxFileSizeBytes)
	dispatchHandler := handler.NewDispatchHandler(dispatchService, applicationService)
	applicationHandler := handler.NewApplicationHandler(applicationService)
	courseHandler := handler.NewCourseHandler(courseService)
	metricsHandler := handler.NewMetricsHandler(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifications.Start(ctx)
	defer notifications.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, authService, authHandler, branchHandler, profileHandler, dispatchHandler, applicationHandler, courseHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func registerRoutes(
	r *gin.Engine,
	cfg *config.Config,
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	branchHandler *handler.BranchHandler,
	profileHandler *handler.TeacherProfileHandler,
	dispatchHandler *handler.DispatchHandler,
	applicationHandler *handler.ApplicationHandler,
	courseHandler *handler.CourseHandler,
) {
	base := r.Group(cfg.APIPrefix + "/v1")

	auth := base.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		session := auth.Group("")
		session.Use(middleware.JWT(authService))
		session.POST("/logout", authHandler.Logout)
		session.POST("/change-password", authHandler.ChangePassword)
	}

	base.GET("/branches", branchHandler.List)
	base.GET("/branches/:id", branchHandler.Get)
	base.GET("/regions", branchHandler.Regions)

	// Signed token in the query string carries its own authorization.
	base.GET("/attachments", profileHandler.DownloadAttachment)

	authed := base.Group("")
	authed.Use(middleware.JWT(authService))

	admin := authed.Group("")
	admin.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	{
		admin.POST("/branches", branchHandler.Create)
		admin.PUT("/branches/:id", branchHandler.Update)
		admin.DELETE("/branches/:id", branchHandler.Delete)
		admin.GET("/branches/:id/nearby-teachers", branchHandler.NearbyTeachers)

		admin.GET("/teachers", profileHandler.List)
		admin.GET("/teachers/:id", profileHandler.Get)
		admin.PATCH("/teachers/:id/review", profileHandler.Review)
		admin.GET("/teachers/:id/attachments/:kind/url", profileHandler.AttachmentURL)
		admin.GET("/exports/teachers", profileHandler.ExportCSV)

		admin.GET("/dispatches", dispatchHandler.List)
		admin.GET("/dispatches/:id", dispatchHandler.Get)
		admin.PUT("/dispatches/:id", dispatchHandler.Update)
		admin.DELETE("/dispatches/:id", dispatchHandler.Delete)
		admin.POST("/dispatches/:id/review", dispatchHandler.StartReview)
		admin.POST("/dispatches/:id/publish", dispatchHandler.Publish)
		admin.POST("/dispatches/:id/close", dispatchHandler.Close)
		admin.POST("/dispatches/:id/cancel", dispatchHandler.Cancel)
		admin.GET("/dispatches/:id/applications", dispatchHandler.Applications)
		admin.POST("/dispatches/:id/select", courseHandler.SelectWinner)
		admin.POST("/dispatches/:id/confirm", courseHandler.Confirm)

		admin.PATCH("/applications/:id/status", applicationHandler.SetStatus)

		admin.GET("/courses", courseHandler.List)
		admin.GET("/courses/:id", courseHandler.Get)
		admin.PUT("/courses/:id", courseHandler.Update)
		admin.PATCH("/courses/:id/status", courseHandler.SetStatus)
		admin.GET("/exports/courses", courseHandler.ExportPDF)
	}

	manager := authed.Group("")
	manager.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleManager))
	{
		manager.POST("/dispatches", dispatchHandler.Create)
		manager.GET("/me/dispatches", dispatchHandler.MyList)
		manager.GET("/me/dispatches/:id", dispatchHandler.GetMine)
		manager.PUT("/me/dispatches/:id", dispatchHandler.UpdateMine)
	}

	teacher := authed.Group("")
	teacher.Use(middleware.RequireRoles(models.RoleTeacher))
	{
		teacher.POST("/me/profile", profileHandler.Submit)
		teacher.GET("/me/profile", profileHandler.GetMine)
		teacher.PUT("/me/profile", profileHandler.UpdateMine)
		teacher.POST("/me/attachments/:kind", profileHandler.UploadAttachment)

		teacher.POST("/postings/:id/apply", dispatchHandler.Apply)
		teacher.GET("/me/applications", applicationHandler.MyApplications)
		teacher.DELETE("/applications/:id", applicationHandler.Withdraw)
		teacher.GET("/me/courses", courseHandler.MyCourses)
	}

	// The posting board is public; authenticated teachers get the is_applied
	// annotation on top.
	base.GET("/postings", middleware.OptionalJWT(authService), dispatchHandler.Board)
}
