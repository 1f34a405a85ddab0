package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lampstand/companion-gateway/internal/background"
	"github.com/lampstand/companion-gateway/internal/config"
	"github.com/lampstand/companion-gateway/internal/contextstore"
	"github.com/lampstand/companion-gateway/internal/gateway"
	"github.com/lampstand/companion-gateway/internal/monitoring"
	"github.com/lampstand/companion-gateway/internal/upstream"
	"github.com/lampstand/companion-gateway/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServer(cfg)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServer(cfg *config.Config) error {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tracker, err := monitoring.NewTracker(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	up := upstream.NewClient(cfg.Upstream)
	// Boot is allowed without a key so local setups can hit /health, but
	// every chat request will fail until one is configured.
	if !up.HasAPIKey() {
		log.Warn().Msg("No upstream API key configured; set UPSTREAM_API_KEY before serving chat traffic")
	}
	runner := background.NewRunner()
	gw := gateway.New(cfg, store, up, runner, tracker)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      gw.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("model", cfg.Upstream.Model).
			Str("store", cfg.Store.Backend).
			Str("api_key", utils.MaskKey(cfg.Upstream.APIKey)).
			Msg("Gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	// Detached extraction tasks finish before the process exits.
	if err := runner.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Background tasks did not finish in time")
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}

// openStore selects the context store backend from configuration.
func openStore(cfg *config.Config) (contextstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		store, err := contextstore.NewSQLiteStore(cfg.Store.DBPath, cfg.Quota.DailyLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "rest":
		store := contextstore.NewRESTStore(cfg.Store.URL, cfg.Store.ServiceKey)
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown context store backend %q", cfg.Store.Backend)
	}
}
