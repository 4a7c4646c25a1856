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
	"go.uber.org/zap"

	_ "github.com/noah-isme/office-hours-api/api/swagger"
	"github.com/noah-isme/office-hours-api/internal/handler"
	"github.com/noah-isme/office-hours-api/internal/middleware"
	"github.com/noah-isme/office-hours-api/internal/repository"
	"github.com/noah-isme/office-hours-api/internal/service"
	"github.com/noah-isme/office-hours-api/pkg/cache"
	"github.com/noah-isme/office-hours-api/pkg/config"
	"github.com/noah-isme/office-hours-api/pkg/logger"
)

// @title Office Hours API
// @version 1.0.0
// @description Professors publish availability, students book it, professors cancel.
// @BasePath /
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	store, err := openStorage(ctx, cfg.Database, logr)
	if err != nil {
		return err
	}
	defer store.close()

	metrics := service.NewMetricsService()
	validate := validator.New()
	readiness := map[string]handler.ReadinessCheck{}
	if store.ping != nil {
		readiness["database"] = store.ping
	}

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.AvailabilityEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, availability cache disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close() //nolint:errcheck
			readiness["redis"] = cacheRepo.Ping
		}
	}
	var cacheRepository service.CacheRepository
	if cacheRepo != nil {
		cacheRepository = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheRepository, metrics, cfg.Cache.AvailabilityTTL, logr, cacheRepo != nil)

	audit := service.NewAuditService(store.audit, service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
	}, metrics, logr)
	audit.Start(context.Background())
	defer audit.Stop()

	authSvc := service.NewAuthService(store.users, validate, audit, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	availabilitySvc := service.NewAvailabilityService(store.availability, validate, cacheSvc, metrics, audit, logr)
	bookingSvc := service.NewBookingService(store.appointments, cacheSvc, metrics, audit, logr)
	exportSvc := service.NewExportService(bookingSvc, logr)

	router := handler.NewRouter(handler.RouterConfig{
		Logger:         logr,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Auth:           authSvc,
		Availability:   availabilitySvc,
		Booking:        bookingSvc,
		Export:         exportSvc,
		Metrics:        metrics,
		AuthLimiter:    middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Readiness:      readiness,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "db_driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
