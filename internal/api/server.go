package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oremus-labs/ol-logstream/internal/handlers"
	"github.com/oremus-labs/ol-logstream/internal/openapi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultRoutePrefix is where job log feeds are mounted.
const DefaultRoutePrefix = "/log"

// Options configures the HTTP server wiring.
type Options struct {
	APIToken    string
	RoutePrefix string
}

// Server wraps the Gin engine and associated configuration.
type Server struct {
	engine *gin.Engine
}

// NewServer constructs a Server with all HTTP routes configured.
func NewServer(handler *handlers.Handler, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), metricsMiddleware(), requestLogger())

	prefix := normalizePrefix(opts.RoutePrefix)

	engine.GET("/healthz", handler.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/openapi", openAPISpec(prefix))

	feeds := engine.Group(prefix)
	feeds.GET("/:id", handler.Snapshot)
	feeds.GET("/:id/stream", handler.StreamLogs)

	protected := engine.Group("/")
	protected.Use(authMiddleware(opts.APIToken))
	protected.POST("/start", handler.StartJob)

	return &Server{engine: engine}
}

func openAPISpec(prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := openapi.JSON(prefix)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render api description"})
			return
		}
		c.Data(http.StatusOK, "application/json", data)
	}
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultRoutePrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}

// Engine exposes the underlying Gin engine for advanced use (testing, etc.).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start launches the HTTP server on the provided address. WriteTimeout stays
// unset because event streams are long-lived.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return srv
}
