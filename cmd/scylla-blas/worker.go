package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scyllablas/scyllablas/internal/config"
	"github.com/scyllablas/scyllablas/internal/logger"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the worker dispatch loop against the shared worker queue",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	lg := logger.New("worker")
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := session.Dial(session.DialOptions{Hosts: cfg.Hosts, Port: cfg.Port, Keyspace: cfg.Keyspace})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer store.Close()
	sess := session.New(store, cfg.Keyspace)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hc := session.NewStoreHealthChecker(store, lg, 2*time.Second)
	go hc.Start(ctx, 5*time.Second)

	w, err := worker.Open(ctx, sess, worker.Config{Sleep: cfg.WorkerSleep}, lg)
	if err != nil {
		return fmt.Errorf("open worker: %w", err)
	}

	lg.Info().Msg("worker loop starting")
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("worker run: %w", err)
	}
	lg.Info().Msg("worker loop stopped")
	return nil
}
