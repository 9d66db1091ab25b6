package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DefensEye/cmmc12/api"
	"github.com/DefensEye/cmmc12/cmd/defenseye/server"
	"github.com/DefensEye/cmmc12/history"
	"github.com/DefensEye/cmmc12/service"
)

const shutDownTimeout = 10 * time.Second

type serveOptions struct {
	port         string
	skipTLS      bool
	otelEndpoint string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the DefensEye HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.port, "port", "", "Port for HTTP server (overrides config and PORT)")
	cmd.Flags().BoolVar(&opts.skipTLS, "skip-tls", false, "Run without TLS")
	cmd.Flags().StringVar(&opts.otelEndpoint, "otel-endpoint", "", "Endpoint for the OpenTelemetry Collector; metrics are disabled when empty")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}
	if err := cfg.Validate(opts.skipTLS); err != nil {
		return err
	}

	logger, err := server.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	observer, otelShutdown, err := server.SetupTelemetry(ctx, opts.otelEndpoint)
	if err != nil {
		return fmt.Errorf("error with instrumentation: %w", err)
	}

	composer, err := server.NewComposer(cfg.Analysis)
	if err != nil {
		return err
	}
	responder, closeResponder, err := server.NewResponder(ctx, cfg.Chatbot)
	if err != nil {
		return err
	}
	store, err := server.NewHistory(cfg.History)
	if err != nil {
		return err
	}
	doc, err := api.LoadDocument(ctx)
	if err != nil {
		return err
	}

	svcOpts := []service.Option{service.WithObserver(observer), service.WithDocument(doc)}
	if store != nil {
		svcOpts = append(svcOpts, service.WithHistory(store))
	}
	chain := server.NewSourceChain(cfg, observer)
	if chain.Primary == nil {
		slog.Warn("Database not configured, analyses will use uploaded CSV data only")
	}
	svc := service.NewService(chain, composer, responder, svcOpts...)

	s := server.NewGinServer(svc, cfg)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("DefensEye API listening", slog.String("addr", s.Addr), slog.Bool("tls", !opts.skipTLS))
		if opts.skipTLS {
			slog.Warn("Insecure connections permitted. TLS is highly recommended for production.")
			serveErr <- s.ListenAndServe()
			return
		}
		cert, key, err := server.SetupTLS(s, cfg)
		if err != nil {
			serveErr <- err
			return
		}
		serveErr <- s.ListenAndServeTLS(cert, key)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case <-ctx.Done():
		slog.Info("Shutdown received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutDownTimeout)
	defer cancelShutdown()
	return errors.Join(runErr, stop(shutdownCtx, s, otelShutdown, closeResponder, store))
}

// stop gracefully shuts down the HTTP server, metrics and stores.
func stop(ctx context.Context, s *http.Server, otelShutdown func(context.Context) error, closeResponder func() error, store *history.Store) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := s.Shutdown(egCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error during http shutdown: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := otelShutdown(egCtx); err != nil {
			return fmt.Errorf("error during opentelemetry shutdown: %w", err)
		}
		return nil
	})
	eg.Go(closeResponder)

	if err := eg.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("Timed out during graceful shutdown. Some cleanup operations might not have completed.")
			return nil
		}
		return err
	}

	// History closes after the server so in-flight analyses can still save.
	if store != nil {
		if err := store.Close(); err != nil {
			return fmt.Errorf("error closing history: %w", err)
		}
	}

	slog.Info("Graceful shutdown complete...")
	return nil
}
