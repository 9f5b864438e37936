package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/crucible/internal/artifact"
	"github.com/michaelbrown/crucible/internal/config"
	"github.com/michaelbrown/crucible/internal/sandbox"
	"github.com/michaelbrown/crucible/internal/server"
	"github.com/michaelbrown/crucible/internal/storage/sqlite"
	"github.com/michaelbrown/crucible/internal/worker"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Crucible execution server",
	Long: `Start the Crucible HTTP server with REST API and WebSocket support.

API endpoints are under /api; Prometheus metrics at /metrics.

Examples:
  crucible serve
  crucible serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	artifacts, err := artifact.NewStore(cfg.Storage.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}

	runner := sandbox.NewRunner(policy, logger)
	pool := worker.NewPool(runner, cfg.Workers.Count, cfg.Workers.QueueSize, logger)

	poolCtx, stopPool := context.WithCancel(context.Background())
	defer stopPool()
	pool.Start(poolCtx)

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(cfg, policy, pool, store, artifacts, logger)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
		stopPool()
	}()

	err = srv.Start(port)
	pool.Wait()
	return err
}
