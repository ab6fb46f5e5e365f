package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/media-query-api/internal/api"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log.Infof("Starting media-query-api v%s", version)

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		services := api.Services{
			Media:     a.media,
			Relations: a.relations,
			Recommend: a.recommend,
			Pool:      a.pool,
		}
		if cfg.Refresher.Enabled {
			services.Refresher = a.refresher
			go a.refresher.Run(ctx)
		} else {
			log.Info("Proxy refresher is disabled")
		}

		if size, err := a.pool.Size(ctx); err != nil {
			log.WithError(err).Warn("Failed to read proxy pool size")
		} else {
			log.Infof("Proxy pool holds %d proxies", size)
		}

		apiServer := api.NewServer(cfg, services, a.metrics, component("api"))
		serverErr := make(chan error, 1)
		go func() {
			if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		log.Infof("Service started successfully on %s", cfg.API.Addr)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigChan:
		case err := <-serverErr:
			return err
		}

		log.Info("Shutting down gracefully...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("API server shutdown error: %v", err)
		}

		log.Info("Shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
