// Package httpapi serves the film search API over HTTP with gin.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bull/filmsearch/internal/mcp"
)

// DefaultServiceName names the service in traces.
const DefaultServiceName = "filmsearch"

// Config wires the router.
type Config struct {
	Engine Engine
	// Health maps dependency names to checkers; a nil checker is reported
	// as disabled.
	Health         map[string]mcp.HealthChecker
	MCP            http.Handler // mounted at /mcp when set
	CORSOrigins    []string
	RequestTimeout time.Duration
	ServiceName    string
	Logger         *slog.Logger
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	log := cfg.Logger.With("component", "http")

	r := gin.New()
	setupMiddleware(r, cfg, log)
	setupRoutes(r, cfg, log)
	return r
}

func setupMiddleware(r *gin.Engine, cfg Config, log *slog.Logger) {
	r.Use(Recovery(log))
	r.Use(RequestID())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}
	r.Use(Trace(cfg.ServiceName))
	r.Use(Metrics())
}

func setupRoutes(r *gin.Engine, cfg Config, log *slog.Logger) {
	h := &handler{engine: cfg.Engine, logger: log}

	r.GET("/", gin.WrapF(mcp.NewLandingHandler()))
	r.GET("/health", gin.WrapF(mcp.NewHealthHandler(cfg.Health)))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", Timeout(cfg.RequestTimeout))
	{
		api.POST("/search", h.search)
		api.POST("/page", h.page)
		api.POST("/chat", h.chat)
		api.GET("/films/:id", h.film)
	}

	if cfg.MCP != nil {
		r.Any("/mcp", gin.WrapH(cfg.MCP))
	}
}
