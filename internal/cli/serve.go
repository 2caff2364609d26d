package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/handler"
	"github.com/biohunter/internal/websocket"
	"github.com/spf13/cobra"
)

// NewServeCmd builds the CLI subcommand that starts the HTTP server and background workers.
func NewServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gameplay API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath)
		},
	}
}

func runServer(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	defer wsHub.Stop()
	app.services.Leaderboard.SetBroadcaster(wsHub)

	if err := app.bus.start(); err != nil {
		return fmt.Errorf("starting event bus: %w", err)
	}

	// Rebuild rankings from the archive on startup (recovery)
	if err := app.syncWorker.RebuildFromArchive(ctx); err != nil {
		logger.Warn("failed to rebuild rankings on startup", "error", err)
	}

	if cfg.Sync.Enabled {
		if err := app.syncWorker.Start(ctx); err != nil {
			return fmt.Errorf("starting sync worker: %w", err)
		}
		defer stopWorker(app, "sync worker", app.syncWorker.Stop)
	}
	if cfg.Retention.Enabled {
		if err := app.retention.Start(ctx); err != nil {
			return fmt.Errorf("starting retention cleaner: %w", err)
		}
		defer stopWorker(app, "retention cleaner", app.retention.Stop)
	}

	httpHandler := handler.NewHandler(app.services, wsHub, &cfg.Leaderboard, app.metrics, logger)
	for name, p := range app.stores.pingers {
		httpHandler.AddReadinessCheck(name, p)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server",
			"port", cfg.Server.Port,
			"store", cfg.Store.Driver,
			"events", cfg.Events.Driver,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func stopWorker(app *application, name string, stop func() error) {
	if err := stop(); err != nil {
		app.logger.Error("failed to stop "+name, "error", err)
	}
}
