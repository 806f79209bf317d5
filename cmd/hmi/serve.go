package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/hmi"
	"github.com/aretw0/hmi/internal/presentation/tui"
	httpAdapter "github.com/aretw0/hmi/pkg/adapters/http"
	"github.com/aretw0/hmi/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP front door",
	Long: `Binds to the endpoint and exposes queries as a JSON API over HTTP,
with request validation against the bundled OpenAPI document and
Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		handlerOpts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
		var clientOpts []hmi.Option
		if cfg.Metrics {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			clientOpts = append(clientOpts, hmi.WithLifecycleHooks(observability.NewMetrics(reg).Hooks()))
			handlerOpts = append(handlerOpts, httpAdapter.WithMetrics(reg))
		}

		client, closeClient, err := connect(ctx, cmd, cfg, logger, clientOpts...)
		if err != nil {
			return err
		}
		defer closeClient()

		handler, err := httpAdapter.NewHandler(client, handlerOpts...)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			tui.NewPrinter(cmd.ErrOrStderr()).Banner()
			logger.Info("starting HMI server", "addr", srv.Addr, "endpoint", cfg.Endpoint)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return err
		case <-ctx.Done():
			logger.Info("shutting down")

			// Give outstanding queries a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown did not complete", "error", err)
				if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}
			logger.Info("HMI server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides config)")
}
