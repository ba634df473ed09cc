package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aretw0/sherpa"
	httpadapter "github.com/aretw0/sherpa/pkg/adapters/http"
	"github.com/aretw0/sherpa/pkg/metrics"
	"github.com/aretw0/sherpa/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve [flow-file]",
	Short: "Start the HTTP session API",
	Long: `Exposes the flow over a JSON API: session creation, navigation,
checklist updates, error history and graph export. Sessions are held in
the configured store, so any replica can continue any session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.HTTP.Addr
		}

		eng, err := sherpa.Load(flowPath(args))
		if err != nil {
			return err
		}
		store, err := buildStore()
		if err != nil {
			return err
		}
		sessions := session.NewManager(store, session.WithLogger(logger))

		opts := []httpadapter.Option{httpadapter.WithLogger(logger)}
		if cfg.HTTP.Metrics {
			opts = append(opts, httpadapter.WithMetrics(metrics.New(prometheus.DefaultRegisterer)))
		}
		srv := httpadapter.NewServer(eng.Steps(), sessions, opts...)

		httpServer := &http.Server{
			Addr:    addr,
			Handler: srv.Handler(),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("http server listening", "address", addr, "flow", eng.Name)
			serverErrors <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					return errors.Join(err, closeErr)
				}
				return err
			}
			logger.Info("server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
}
