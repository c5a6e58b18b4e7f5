package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scyllablas/scyllablas/internal/config"
	"github.com/scyllablas/scyllablas/internal/logger"
	"github.com/scyllablas/scyllablas/internal/scheduler"
	"github.com/scyllablas/scyllablas/internal/session"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the keyspace, metadata tables, and shared worker queue",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	lg := logger.New("init")
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx := context.Background()

	// No keyspace is selected yet: CREATE KEYSPACE must run before any
	// per-operand or coordination table can be addressed.
	bootstrapStore, err := session.DialNoKeyspace(cfg.Hosts, cfg.Port)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if err := session.Bootstrap(ctx, bootstrapStore, cfg.Keyspace); err != nil {
		_ = bootstrapStore.Close()
		return fmt.Errorf("bootstrap keyspace: %w", err)
	}
	if err := bootstrapStore.Close(); err != nil {
		return fmt.Errorf("close bootstrap session: %w", err)
	}

	store, err := session.Dial(session.DialOptions{Hosts: cfg.Hosts, Port: cfg.Port, Keyspace: cfg.Keyspace})
	if err != nil {
		return fmt.Errorf("dial keyspace: %w", err)
	}
	defer store.Close()

	sess := session.New(store, cfg.Keyspace)
	if err := scheduler.BootstrapWorkerQueue(ctx, sess); err != nil {
		return fmt.Errorf("bootstrap worker queue: %w", err)
	}

	lg.Info().Str("keyspace", cfg.Keyspace).Int64("worker_queue_id", scheduler.WorkerQueueID).Msg("cluster initialized")
	return nil
}
