package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scyllablas/scyllablas/internal/config"
	"github.com/scyllablas/scyllablas/internal/logger"
	"github.com/scyllablas/scyllablas/internal/session"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe store connectivity once and report UP/DOWN",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	lg := logger.New("health")
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := session.Dial(session.DialOptions{Hosts: cfg.Hosts, Port: cfg.Port, Keyspace: cfg.Keyspace})
	if err != nil {
		fmt.Println("DOWN")
		return fmt.Errorf("dial: %w", err)
	}
	defer store.Close()

	hc := session.NewStoreHealthChecker(store, lg, 2*time.Second)
	if err := hc.Probe(context.Background()); err != nil {
		fmt.Println("DOWN")
		return fmt.Errorf("probe: %w", err)
	}
	fmt.Println("UP")
	return nil
}
