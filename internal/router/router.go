package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	playground "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/scheduler-api/internal/handler"
	"github.com/jwalitptl/scheduler-api/internal/middleware"
	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/validator"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine      *gin.Engine
	auth        *middleware.AuthMiddleware
	schedulingH Handler
	healthH     Handler
	gatherer    prometheus.Gatherer
	metrics     *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type RouterConfig struct {
	// RateLimit disables per-client limiting when nil.
	RateLimit      *middleware.RateLimiterConfig
	CORSConfig     middleware.CORSConfig
	RequestTimeout time.Duration
	MaxBodySize    int64
	MetricsPrefix  string
	// Registry receives the HTTP collectors and backs GET /metrics.
	Registry *prometheus.Registry
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	schedulingH Handler,
	healthH Handler,
	log *logger.Logger,
	config RouterConfig,
) *Router {
	engine := gin.New()

	if err := validator.RegisterGinValidations(map[string]playground.Func{
		"platform": validPlatform,
	}); err != nil {
		log.Error(err, "Failed to register request validations")
	}

	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.MetricsPrefix == "" {
		config.MetricsPrefix = "scheduler_http"
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = middleware.DefaultSizeLimitConfig().MaxBodySize
	}

	metrics := initRouterMetrics(config.MetricsPrefix)
	config.Registry.MustRegister(metrics.requestDuration, metrics.requestTotal, metrics.errorTotal)

	r := &Router{
		engine:      engine,
		auth:        auth,
		schedulingH: schedulingH,
		healthH:     healthH,
		gatherer:    config.Registry,
		metrics:     metrics,
	}

	// Add core middlewares
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		r.metricsMiddleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimit != nil {
		engine.Use(middleware.NewRateLimiter(*config.RateLimit).RateLimit())
	}
	engine.Use(middleware.SizeLimit(middleware.SizeLimitConfig{MaxBodySize: config.MaxBodySize}))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("route not found"))
	})

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	// Public routes
	r.healthH.RegisterRoutes(api)

	// Protected routes
	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.schedulingH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		if c.Writer.Status() >= 500 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		} else if c.Writer.Status() >= 400 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}

func validPlatform(fl playground.FieldLevel) bool {
	_, ok := model.ParsePlatform(fl.Field().String())
	return ok
}
