package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/mindscan/internal/stubserver"
	"github.com/spf13/cobra"
)

var stubCmd = &cobra.Command{
	Use:   "stub-backend",
	Short: "Run a local assessment backend with a fixed prediction",
	Long: `Starts an HTTP server that implements the assessment API with an
in-memory store and a canned prediction. Useful for demos and for trying a
session without the real service.`,
	RunE: runStub,
}

var stubListen string

func init() {
	stubCmd.Flags().StringVar(&stubListen, "listen", "", "Listen address (defaults to config)")
}

func runStub(cmd *cobra.Command, args []string) error {
	logger := stderrLogger()
	addr := cfg.Stub.Listen
	if stubListen != "" {
		addr = stubListen
	}

	service := stubserver.NewService(stubserver.Config{
		Secret:     []byte(cfg.Stub.Secret),
		TokenTTL:   cfg.Stub.TokenTTL,
		ReadyAfter: cfg.Stub.ReadyAfter,
		StorageDir: cfg.Stub.StorageDir,
		Logger:     logger,
	})
	server := stubserver.NewServer(service, addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	logger.Info("stub backend listening", "addr", addr, "ready_after", cfg.Stub.ReadyAfter)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
