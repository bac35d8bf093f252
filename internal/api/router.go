// Package api exposes the hub over HTTP and websockets.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"liminal/internal/active"
	"liminal/internal/config"
	"liminal/internal/db"
	"liminal/internal/health"
	"liminal/internal/history"
	"liminal/internal/hub"
	"liminal/internal/spin"
)

// Deps is everything the handlers read from or drive.
type Deps struct {
	Hub     *hub.Hub
	Spins   *spin.Service
	Active  *active.Table
	History *history.Store
	// Archive is nil when archiving is disabled.
	Archive *db.Archive
	Health  *health.Reporter
	// Metrics is nil when the /metrics endpoint is disabled.
	Metrics http.Handler

	Server    config.ServerConfig
	Spinner   config.SpinnerConfig
	WebSocket config.WebSocketConfig
	Log       *slog.Logger
}

type Server struct {
	deps Deps
	log  *slog.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	s := &Server{deps: deps, log: deps.Log}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(corsConfig(deps.Server.CORSOrigins)))

	spinner := r.Group("/api/spinner")
	{
		spinner.POST("/spin", s.handleSpin)
		spinner.GET("/history", s.handleHistory)
		spinner.GET("/active", s.handleActive)
		spinner.GET("/presets", s.handlePresets)
		spinner.GET("/archive", s.handleArchive)
		spinner.GET("/archive/stats", s.handleArchiveStats)
	}

	r.GET("/api/health", s.handleHealth)
	r.GET("/ws", s.handleWebSocket)

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if allowAll(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func allowAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"remote", c.ClientIP(),
			"latency", time.Since(start),
		)
	}
}
