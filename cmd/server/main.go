package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberlink/matchwire-server/internal/app"
	"github.com/emberlink/matchwire-server/internal/auth"
	"github.com/emberlink/matchwire-server/internal/config"
	"github.com/emberlink/matchwire-server/internal/log"
)

func main() {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "matchwire-server",
		Short:         "Realtime presence and fan-out server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New(logLevel)

			cfg, path, err := config.Load(bootLogger, configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is required (set it in %s or MATCHWIRE_JWT_SECRET)", path)
			}

			logger := log.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Str("config", path).Msg("starting matchwire server")
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(tokenCommand(&configPath, &logLevel))

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// tokenCommand mints a dev token from the configured secret so clients
// can be tested without the REST identity layer.
func tokenCommand(configPath, logLevel *string) *cobra.Command {
	var (
		userID   int64
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := log.New(*logLevel)

			cfg, _, err := config.Load(logger, *configPath)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is required")
			}

			authCfg := &auth.Config{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      ttl,
			}
			token, err := auth.GenerateToken(authCfg, userID, username)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 1, "user id claim")
	cmd.Flags().StringVar(&username, "username", "dev", "username claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}
