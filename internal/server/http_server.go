package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ssogin "github.com/pilab-dev/exam-sso/api/gin"
	"github.com/pilab-dev/exam-sso/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Options configures the HTTP server.
type Options struct {
	Addr        string
	ServiceName string
	Debug       bool
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]ReadinessCheck
}

// RouteRegistrar adds a group of API routes to the router.
type RouteRegistrar interface {
	RegisterRoutes(r gin.IRouter)
}

// NewHTTPServer creates and configures a new Gin HTTP server.
func NewHTTPServer(opts Options, appLogger log.Logger, apis ...RouteRegistrar) *http.Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(requestLogger(appLogger))
	router.Use(ssogin.SecurityHeadersMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/readyz", readinessHandler(appLogger, opts.Checks))

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})))
	}

	if len(apis) == 0 {
		appLogger.Warn(context.Background(), "No APIs provided to NewHTTPServer, only probes will be served.")
	}
	for _, a := range apis {
		a.RegisterRoutes(router)
	}

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    8 * 1024,
	}
}

// requestLogger logs one line per request. The query string is left out since
// SSO callbacks carry authorization codes in it.
func requestLogger(appLogger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}

		ctx := c.Request.Context()
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			appLogger.Error(ctx, "HTTP Request", err, fields)
		case len(c.Errors) > 0:
			fields["error"] = c.Errors.String()
			appLogger.Warn(ctx, "HTTP Request", fields)
		default:
			appLogger.Info(ctx, "HTTP Request", fields)
		}
	}
}

func readinessHandler(appLogger log.Logger, checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		failed := make(map[string]string)
		for name, check := range checks {
			if err := check(ctx); err != nil {
				appLogger.Error(ctx, "Readiness check failed", err, map[string]interface{}{"dependency": name})
				failed[name] = "unavailable"
			}
		}

		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "failed": failed})
			return
		}

		c.String(http.StatusOK, "OK")
	}
}
