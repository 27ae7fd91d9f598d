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
	"go.uber.org/zap"

	_ "github.com/noah-isme/training-roster-api/api/swagger"
	"github.com/noah-isme/training-roster-api/internal/handler"
	"github.com/noah-isme/training-roster-api/internal/middleware"
	"github.com/noah-isme/training-roster-api/internal/repository"
	"github.com/noah-isme/training-roster-api/internal/service"
	"github.com/noah-isme/training-roster-api/pkg/cache"
	"github.com/noah-isme/training-roster-api/pkg/config"
	"github.com/noah-isme/training-roster-api/pkg/database"
	"github.com/noah-isme/training-roster-api/pkg/learning"
	"github.com/noah-isme/training-roster-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/training-roster-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/training-roster-api/pkg/middleware/requestid"
	"github.com/noah-isme/training-roster-api/pkg/storage"
)

// @title Training Roster API
// @version 1.0.0
// @description Role hierarchy, promotions, program/site directory and training dashboard
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := newCache(ctx, cfg, metricsSvc, logr)

	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	promotionRepo := repository.NewPromotionRepository(db)
	programSiteRepo := repository.NewProgramSiteRepository(db)
	courseRepo := repository.NewExternalCourseRepository(db)

	auditSvc := service.NewAuditService(userRepo, metricsSvc, logr, service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: cfg.Audit.RetryDelay,
	})
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	validate := validator.New()
	roleSvc := service.NewRoleService(roleRepo, cacheSvc, auditSvc, logr)
	authSvc := service.NewAuthService(userRepo, auditSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, roleSvc, cacheSvc, auditSvc, validate, logr)
	promotionSvc := service.NewPromotionService(promotionRepo, userRepo, roleSvc, cacheSvc, auditSvc, metricsSvc, logr, service.PromotionConfig{
		Enabled:         cfg.Promotions.Enabled,
		AllowDuplicates: cfg.Promotions.AllowDuplicates,
	})
	directorySvc := service.NewDirectoryService(programSiteRepo, auditSvc, metricsSvc, logr, cfg.Directory.MaxImportBytes)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Users:    userRepo,
		Courses:  courseRepo,
		Roles:    roleSvc,
		Platform: newLearningPlatform(cfg, logr),
		Cache:    cacheSvc,
		Metrics:  metricsSvc,
		Logger:   logr,
		Config: service.DashboardServiceConfig{
			PageSize: cfg.Dashboard.PageSize,
			StatsTTL: cfg.Dashboard.StatsTTL,
		},
	})

	certificates, err := storage.NewLocalStorage(cfg.Courses.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare certificate storage", zap.Error(err))
	}
	courseSvc := service.NewCourseService(service.CourseServiceParams{
		Repo:    courseRepo,
		Roles:   roleSvc,
		Storage: certificates,
		Signer:  storage.NewSignedURLSigner(cfg.Courses.SignedURLSecret, cfg.Courses.SignedURLTTL),
		Cache:   cacheSvc,
		Audit:   auditSvc,
		Logger:  logr,
		Config: service.CourseServiceConfig{
			MaxFileSize:  cfg.Courses.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Courses.AllowedMIMEs,
			APIPrefix:    cfg.APIPrefix,
		},
	})

	if cfg.Bootstrap.AdminEmail != "" {
		created, err := userSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminName)
		if err != nil {
			logr.Fatal("failed to bootstrap administrator", zap.Error(err))
		}
		if created {
			logr.Info("bootstrap administrator created", zap.String("email", cfg.Bootstrap.AdminEmail))
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	handler.Routes{
		Tokens:       authSvc,
		CurrentRoles: userSvc,
		Capabilities: roleSvc,
		Audit:        auditSvc,
		Auth:         handler.NewAuthHandler(authSvc),
		Users:        handler.NewUserHandler(userSvc, dashboardSvc),
		Roles:        handler.NewRoleHandler(roleSvc),
		Promotions:   handler.NewPromotionHandler(promotionSvc),
		Directory:    handler.NewDirectoryHandler(directorySvc),
		Courses:      handler.NewCourseHandler(courseSvc),
	}.Register(r.Group(cfg.APIPrefix))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown", zap.Error(err))
	}
}

// newCache prefers Redis and falls back to the in-process store when Redis is
// disabled or unreachable.
func newCache(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) *service.CacheService {
	if !cfg.Cache.Enabled {
		return service.NewCacheService(nil, metrics, cfg.Cache.DefaultTTL, logr, false)
	}

	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err == nil {
			return service.NewCacheService(repository.NewCacheRepository(client, "training-roster:"), metrics, cfg.Cache.DefaultTTL, logr, true)
		}
		logr.Warn("redis unavailable, using in-process cache", zap.Error(err))
	}

	maxTTL := cfg.Cache.DefaultTTL
	if cfg.Dashboard.StatsTTL > maxTTL {
		maxTTL = cfg.Dashboard.StatsTTL
	}
	return service.NewCacheService(cache.NewMemoryStore(cfg.Cache.MemorySize, maxTTL), metrics, cfg.Cache.DefaultTTL, logr, true)
}

func newLearningPlatform(cfg *config.Config, logr *zap.Logger) learning.Platform {
	if !cfg.Learning.Enabled || cfg.Learning.BaseURL == "" {
		logr.Info("learning platform disabled, course stats will be empty")
		return learning.NoopPlatform{}
	}
	return learning.NewHTTPPlatform(cfg.Learning.BaseURL, cfg.Learning.APIToken, cfg.Learning.Timeout)
}
