package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-print-bridge/config"
	"github.com/nixxel-company-limited/escpos-print-bridge/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	snap := store.Snapshot()
	b := newBridge(snap)
	defer b.Close()

	store.Watch(logger, func(s config.Snapshot) {
		if s.ListenAddress != snap.ListenAddress || s.RawAddress != snap.RawAddress {
			logger.Warn("listen addresses changed, restart to apply")
		}
	})

	if snap.DeviceName == "" {
		logger.Warn("no printer device configured, receipts will fail until " + config.KeyDeviceName + " is set")
	}

	if snap.RawAddress != "" {
		raw := server.NewWithLogger(b.dispatcher, snap.RawAddress, logger)
		if err := raw.StartAsync(); err != nil {
			return err
		}
		defer raw.Stop()
	}

	ws := server.NewWSHandler(b.dispatcher, snap.RequestsPerSecond, logger)
	srv := &http.Server{
		Addr:              snap.ListenAddress,
		Handler:           server.NewMux(ws),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bridge listening", "address", snap.ListenAddress, "device", snap.DeviceName, "kiosk", snap.KioskMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
