package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	Long: `Start the HTTP server exposing the council as a REST API.

Clients stage source files with POST /api/v1/uploads, trigger a review with
POST /api/v1/analyses, and read stored runs back with GET /api/v1/analyses.

Examples:
  # Start with defaults (127.0.0.1:8745)
  codecouncil serve

  # Bind to all interfaces on a custom port
  codecouncil serve --host 0.0.0.0 --port 3000`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "",
		"host address to bind to (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"port to listen on (default from config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger := newLogger(cfg)
	engine, _, err := buildCouncil(cfg, logger)
	if err != nil {
		return err
	}

	store, err := openRunStore(cfg)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("closing run history failed", "error", closeErr)
		}
	}()

	handlers := web.NewHandlers(engine, store, core.SystemClock(), cfg.Server.MaxUploadBytes, logger)
	server := web.New(cfg.Server, handlers, logger)

	server.Start()
	logger.Info("server started", "addr", server.Addr())

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
