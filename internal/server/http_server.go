package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	ginapi "github.com/pilab-dev/shadow-auth/api/gin"
	"github.com/pilab-dev/shadow-auth/config"
	"github.com/pilab-dev/shadow-auth/log"
)

// Options carries the collaborators of the HTTP server.
type Options struct {
	Auth     *ginapi.AuthAPI
	Status   *ginapi.StatusAPI
	Gatherer prometheus.Gatherer // nil serves the default registry
}

// NewRouter builds the gin engine with middleware and all routes registered.
func NewRouter(cfg *config.ServerConfig, appLogger log.Logger, opts Options) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestLogger(appLogger))
	router.Use(otelgin.Middleware(cfg.OtelServiceName))
	router.Use(ginapi.SecurityHeadersMiddleware())
	if opts.Status != nil {
		router.Use(opts.Status.RequireDatabase())
	}

	router.GET("/", ginapi.RootHandler)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	if opts.Status != nil {
		opts.Status.RegisterRoutes(api)
	}
	if opts.Auth != nil {
		opts.Auth.RegisterRoutes(api)
	}

	return router
}

// NewHTTPServer creates and configures a new Gin HTTP server.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, opts Options) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           NewRouter(cfg, appLogger, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// requestLogger logs one line per request. Query strings are left out since
// they may carry tokens.
func requestLogger(appLogger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}

		if len(c.Errors) > 0 {
			appLogger.Error(c.Request.Context(), "HTTP request failed", c.Errors.Last().Err, fields)
			return
		}
		appLogger.Info(c.Request.Context(), "HTTP request", fields)
	}
}
