package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/emberlink/matchwire-server/internal/auth"
	"github.com/emberlink/matchwire-server/internal/config"
	"github.com/emberlink/matchwire-server/internal/core"
	"github.com/emberlink/matchwire-server/internal/live"
	"github.com/emberlink/matchwire-server/internal/metrics"
)

// NewServer builds the HTTP server hosting the WebSocket endpoint, the
// health check, and the stats/metrics surface.
func NewServer(hub *core.Hub, authCfg *auth.Config, issuer *live.Issuer, met *metrics.Metrics, gatherer prometheus.Gatherer, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	ws := NewWSHandler(hub, authCfg, issuer, met, cfg, logger)
	router.GET("/ws", func(c *gin.Context) {
		ws.ServeHTTP(c.Writer, c.Request)
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	protected := router.Group("/", AuthMiddleware(authCfg, logger))
	protected.GET("/stats", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, hub.Stats())
	})

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
