package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/api"
	"github.com/sells-group/equity-map/internal/dashboard"
	"github.com/sells-group/equity-map/internal/registry"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	Long:  "Serves per-session dashboards over HTTP. Each session loads the tract data once and keeps its own index slots, selection and view.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		reg, err := registry.Load()
		if err != nil {
			return eris.Wrap(err, "load field registry")
		}
		client := newClient(cfg, reg)
		opts := dashboardOptions(cfg)

		srvAPI := api.NewServer(reg, func() *dashboard.Dashboard {
			return dashboard.New(client, reg, opts)
		}, api.Options{
			MaxSessions: cfg.Server.MaxSessions,
			SessionTTL:  time.Duration(cfg.Server.SessionTTLMins) * time.Minute,
			CORSOrigins: cfg.Server.CORSOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvAPI.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go pruneSessions(ctx, srvAPI.Sessions(), time.Minute)

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// pruneSessions drops idle sessions every interval until ctx ends.
func pruneSessions(ctx context.Context, store *api.SessionStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Prune(); n > 0 {
				zap.L().Info("pruned idle sessions", zap.Int("count", n))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
