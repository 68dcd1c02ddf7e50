package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/campus-events/internal/config"
	"github.com/iliyamo/campus-events/internal/handler"
	"github.com/iliyamo/campus-events/internal/router"
	"github.com/iliyamo/campus-events/internal/service"
	"github.com/iliyamo/campus-events/internal/utils"
)

var serverPort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server and the retention sweeper.

Examples:
  # Start with configuration from the environment / .env
  campus-events serve

  # Override the port and log verbosely
  campus-events serve --port 9000 --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverPort, "port", "", "HTTP port (default: APP_PORT or 8000)")
}

func runServer() error {
	cfg, logger := loadConfig()
	if serverPort != "" {
		cfg.Port = serverPort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	rdb := config.NewRedisClient(cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}
	store := buildCache(cfg, rdb, logger)
	images := buildImages(ctx, cfg, logger)
	notify, pub := buildNotifier(cfg, store, logger)
	defer pub.Close()
	defer notify.Wait()

	issuer := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour)
	authSvc := service.NewAuthService(st.users, st.tokens, issuer, buildVerifier(cfg), cfg.BcryptCost, logger)
	eventSvc := service.NewEventService(st.events, images, notify, cfg.EventLocation, logger)
	sweeper := service.NewSweeper(st.events, images, notify, cfg.Sweep, logger)

	if cfg.Sweep.Enabled {
		go sweeper.Run(ctx)
	}

	e := router.New(router.Deps{
		Config: cfg,
		Logger: logger,
		Issuer: issuer,
		Users:  st.users,
		Cache:  store,
		Redis:  rdb,
		Auth:   handler.NewAuthHandler(authSvc, cfg.IsProduction()),
		Events: handler.NewEventHandler(eventSvc, sweeper, handler.DefaultMaxThumbnailBytes),
		Health: handler.NewHealth(cfg.Env),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	return nil
}
