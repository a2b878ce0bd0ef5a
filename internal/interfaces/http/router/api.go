package router

import (
	"net/http"

	"github.com/fulfillment/backend/internal/infrastructure/config"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"github.com/fulfillment/backend/internal/interfaces/http/dto"
	"github.com/fulfillment/backend/internal/interfaces/http/handler"
	"github.com/fulfillment/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// HealthPath is served outside the versioned API and without auth
const HealthPath = "/health"

// Handlers bundles the handlers the API serves
type Handlers struct {
	Fulfillment   *handler.FulfillmentHandler
	Notifications *handler.NotificationHandler
	Stream        *handler.NotificationStreamHandler
	System        *handler.SystemHandler
}

// EngineConfig configures the middleware chain
type EngineConfig struct {
	Logger  *zap.Logger
	HTTP    config.HTTPConfig
	Auth    middleware.ActorAuthConfig
	Tracing middleware.TracingConfig
	// Meter records HTTP metrics; nil disables them
	Meter metric.Meter
}

// NewEngine builds the gin engine: global middleware first, then the
// versioned API behind actor resolution.
func NewEngine(h Handlers, cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	if cfg.Tracing.Enabled {
		engine.Use(middleware.TracingWithConfig(cfg.Tracing))
		engine.Use(middleware.SpanErrorMarker())
	}
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFrom(cfg.HTTP)))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.HTTPMetrics(cfg.Meter))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeNotFound, "Route not found", c.GetString(middleware.RequestIDKey)))
	})

	if h.System != nil {
		engine.GET(HealthPath, h.System.Health)
	}

	auth := cfg.Auth
	if auth.Logger == nil {
		auth.Logger = log
	}
	r := NewRouter(engine, WithAPIVersion("v1")).Use(middleware.ActorAuth(auth))
	if cfg.Tracing.Enabled {
		r.Use(middleware.SpanEnricher())
	}

	if h.Fulfillment != nil {
		r.Register(FulfillmentRoutes(h.Fulfillment))
	}
	if h.Notifications != nil {
		r.Register(NotificationRoutes(h.Notifications, h.Stream))
	}
	if h.System != nil {
		r.Register(NewDomainGroup("system", "/system").GET("/info", h.System.GetSystemInfo))
	}
	r.Setup()
	for _, rt := range r.Routes() {
		log.Debug("Route registered", zap.String("method", rt.Method), zap.String("path", rt.Path))
	}
	return engine
}

// FulfillmentRoutes serves items, transitions, orders and labels
func FulfillmentRoutes(h *handler.FulfillmentHandler) *DomainGroup {
	g := NewDomainGroup("fulfillment", "/fulfillment")

	items := g.Group("items", "/items")
	items.POST("", h.CreateItem).
		GET("/:id", h.GetItem).
		POST("/:id/transitions", h.TransitionItem)

	orders := g.Group("orders", "/orders")
	orders.GET("/:id", h.GetOrder).
		POST("/:id/label", h.BuildLabel).
		GET("/:id/label/document", h.LabelDocument)
	return g
}

// NotificationRoutes serves the durable list and, when stream is set, the
// live push channel
func NotificationRoutes(h *handler.NotificationHandler, stream *handler.NotificationStreamHandler) *DomainGroup {
	g := NewDomainGroup("notifications", "/notifications")
	g.GET("", h.List)
	if stream != nil {
		g.GET("/stream", stream.Stream)
	}
	g.POST("/:id/read", h.MarkRead)
	return g
}
