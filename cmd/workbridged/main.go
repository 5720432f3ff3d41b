package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/workbridge/workbridge/internal/config"
	"github.com/workbridge/workbridge/internal/dispatch"
	"github.com/workbridge/workbridge/internal/httpapi"
)

var version = "v0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "workbridged",
		Short:         "Workspace-scoped command bridge between MCP clients and worker plugins",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var httpAddr string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "listen address (overrides WORKBRIDGE_HTTP_ADDR)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: trace|debug|info|warn|error")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)

	dispatcher := dispatch.NewDispatcher(dispatch.DefaultCatalog(), cfg.CommandTimeout, logger)
	handler := httpapi.NewHandler(dispatcher, cfg, logger)
	router := httpapi.NewRouter(handler)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown incomplete, closing")
		_ = server.Close()
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(parsed).With().Timestamp().Logger()
}
