// Package server is the admin/control HTTP surface: health, metrics,
// token issuance, DNS cache stats, and the config WebSocket endpoint.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/edgeproxy/internal/dnscache"
	"github.com/danmuck/edgeproxy/internal/observability"
	"github.com/danmuck/edgeproxy/internal/protocol"
	"github.com/danmuck/edgeproxy/internal/token"
	"github.com/danmuck/edgeproxy/internal/wscontrol"
)

type Server struct {
	Name     string
	Appeared time.Time

	issuer   *token.Issuer
	dns      *dnscache.Manager
	domains  map[string]struct{}
	baseline protocol.ConfigState
	router   *gin.Engine
}

// Options collects the admin surface's collaborators.
type Options struct {
	Name        string
	CorsOrigins []string
	Issuer      *token.Issuer
	DNS         *dnscache.Manager
	Domains     []string
	Baseline    protocol.ConfigState
}

// New builds the gin engine with the standard middleware chain.
func New(opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(opts.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	domains := make(map[string]struct{}, len(opts.Domains))
	for _, d := range opts.Domains {
		domains[d] = struct{}{}
	}
	return &Server{
		Name:     opts.Name,
		Appeared: time.Now(),
		issuer:   opts.Issuer,
		dns:      opts.DNS,
		domains:  domains,
		baseline: opts.Baseline,
		router:   r,
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.POST("/api/token", func(c *gin.Context) {
		var req struct {
			Domain string `json:"domain" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, ok := s.domains[req.Domain]; !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "domain is not on the allow-list"})
			return
		}
		tok, err := s.issuer.Issue(req.Domain)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": tok})
	})

	s.router.GET("/api/dns/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.dns.Stats())
	})

	s.router.POST("/api/dns/reset", func(c *gin.Context) {
		s.dns.ResetStats()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.router.GET("/ws/config", wscontrol.Handler(s.baseline, log.Logger))
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
