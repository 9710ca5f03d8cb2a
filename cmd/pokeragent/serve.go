package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pokerlens/pokeragent-worker/internal/layout"
	"github.com/pokerlens/pokeragent-worker/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx := cmd.Context()

		rt, err := buildRuntime(ctx, log)
		if err != nil {
			return fmt.Errorf("failed to build server: %w", err)
		}
		defer rt.close()

		layouts := layout.NewDetector(rt.cfg.LayoutConfidenceThreshold, log)
		server := web.NewServer(rt.orc, rt.segments, rt.hands, layouts, log)

		httpServer := &http.Server{
			Addr:         rt.cfg.HTTPAddr,
			Handler:      server.Routes(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 15 * time.Minute, // direct processing endpoints run full analyses
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", rt.cfg.HTTPAddr).Msg("http server listening")
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			log.Info().Msg("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	},
}
