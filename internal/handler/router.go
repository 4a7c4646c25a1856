package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/middleware"
	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/service"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/office-hours-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/office-hours-api/pkg/middleware/requestid"
	"github.com/noah-isme/office-hours-api/pkg/response"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Logger         *zap.Logger
	AllowedOrigins []string
	EnableDocs     bool

	Auth         *service.AuthService
	Availability *service.AvailabilityService
	Booking      *service.BookingService
	Export       *service.ExportService
	Metrics      *service.MetricsService
	AuthLimiter  *middleware.RateLimiter
	Readiness    map[string]ReadinessCheck
}

// NewRouter builds the gin engine with every route of the API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(middleware.WithResponseMeta())

	authHandler := NewAuthHandler(cfg.Auth)
	availabilityHandler := NewAvailabilityHandler(cfg.Availability)
	appointmentHandler := NewAppointmentHandler(cfg.Booking, cfg.Export)
	metricsHandler := NewMetricsHandler(cfg.Metrics, cfg.Readiness)

	r.GET("/", metricsHandler.Root)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authJWT := middleware.JWT(cfg.Auth)
	professorOnly := middleware.RequireRolesWithMessage("Only professors can set availability", models.RoleProfessor)
	limiter := middleware.RateLimit(cfg.AuthLimiter)

	auth := r.Group("/auth")
	auth.POST("/signup", limiter, authHandler.Signup)
	auth.POST("/login", limiter, authHandler.Login)
	auth.GET("/me", authJWT, authHandler.Me)

	r.POST("/availability", authJWT, professorOnly, availabilityHandler.Publish)
	r.GET("/professor/:professorId/availability", authJWT, availabilityHandler.ListForProfessor)

	// Role checks for booking and cancelling live in BookingService so that the
	// wrong role gets its dedicated 400 message rather than a generic 403.
	r.POST("/appointment/:slotId", authJWT, appointmentHandler.Book)
	r.GET("/appointments", authJWT, appointmentHandler.List)
	r.GET("/appointments/export", authJWT, appointmentHandler.Export)
	r.DELETE("/appointments/:appointmentId", authJWT, appointmentHandler.Cancel)

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})

	return r
}
