package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dom/shared-calendar/internal/api"
	"github.com/dom/shared-calendar/internal/config"
	"github.com/dom/shared-calendar/internal/metrics"
	"github.com/dom/shared-calendar/internal/reminder"
	"github.com/dom/shared-calendar/internal/repository/postgres"
	"github.com/dom/shared-calendar/internal/service"
	"github.com/dom/shared-calendar/internal/websocket"
	"github.com/spf13/cobra"
)

var (
	// Server flags (override env)
	serverHost string
	serverPort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	Long: `Start the HTTP and WebSocket server.

The server will:
- Apply pending database migrations
- Start the reminder dispatcher
- Serve the REST API under /api and WebSocket connections on /api/ws
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  server serve
  server serve --port 9090 --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: all interfaces)")
	serveCmd.Flags().StringVar(&serverPort, "port", "", "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Host = serverHost
	}
	if serverPort != "" {
		cfg.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("environment", cfg.Environment).Msg("starting shared calendar server")

	metrics.Init()

	db, err := postgres.NewConnection(cfg.DatabaseURL, config.GormLogLevel(cfg.Logging))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer postgres.Close(db)

	if err := postgres.RunMigrations(db, logger); err != nil {
		return err
	}

	repos := postgres.NewRepositories(db)

	hub := websocket.NewHub(repos.Calendar, logger)
	go hub.Run()

	services := service.NewServices(repos, hub, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := reminder.NewDispatcher(repos.Reminder, hub, cfg.ReminderPollInterval, logger)
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Start(ctx)
	}()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(services, hub, cfg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("http server error")
	}

	cancel()
	<-dispatcherDone
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}
