package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/emberlink/matchwire-server/internal/auth"
	"github.com/emberlink/matchwire-server/internal/config"
	"github.com/emberlink/matchwire-server/internal/core"
	"github.com/emberlink/matchwire-server/internal/live"
	"github.com/emberlink/matchwire-server/internal/metrics"
	transporthttp "github.com/emberlink/matchwire-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	met := metrics.New(promReg)

	authCfg := &auth.Config{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}

	hub := core.NewHub(core.Options{
		SendBuffer:        cfg.SendBuffer,
		RateWindow:        cfg.RateWindow,
		RateMaxEvents:     cfg.RateMaxEvents,
		RateScope:         core.ParseScope(cfg.RateScope),
		EchoSelf:          cfg.EchoSelf,
		IdleTimeout:       cfg.IdleTimeout,
		DisconnectTimeout: cfg.DisconnectTimeout,
	}, *logger, met)

	issuer := live.NewIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL)
	if issuer == nil {
		logger.Info().Msg("livekit credentials not configured, live media disabled")
	}

	server := transporthttp.NewServer(hub, authCfg, issuer, met, promReg, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
