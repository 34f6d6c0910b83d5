package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/zvdy/emrfleet/src/api"
	"github.com/zvdy/emrfleet/src/collector"
	"github.com/zvdy/emrfleet/src/journal"
	"github.com/zvdy/emrfleet/src/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.log
	cfg := a.cfg
	log.Info("Starting EMR fleet service...")

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler, err = metrics.Register(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		if pg, ok := a.store.(*journal.PostgresStore); ok {
			if err := metrics.RegisterJournalPool(prometheus.DefaultRegisterer, pg.Stats); err != nil {
				return fmt.Errorf("failed to register journal metrics: %w", err)
			}
		}

		// Start collector in background
		clusterCollector := collector.NewClusterCollector(a.service, metrics.SetClusterStates, log, cfg.Metrics.CollectionInterval)
		go clusterCollector.Start(ctx)
	}

	handler := api.NewHandler(a.service, log)
	router := api.NewRouter(handler, cfg.CORS.AllowedOrigin, metricsHandler, cfg.Metrics.Path)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting HTTP server on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("Shutting down gracefully...")

	// Stop the collector
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}

	log.Info("EMR fleet service stopped")
	return nil
}
