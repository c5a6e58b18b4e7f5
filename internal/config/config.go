// Package config holds the runtime configuration for scylla-blas processes
// (scheduler callers, workers, and the CLI), parsed from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration shared by every scylla-blas process.
// Environment variables are parsed with the SCYLLABLAS_ prefix, e.g.
// SCYLLABLAS_HOSTS, SCYLLABLAS_PORT, SCYLLABLAS_WORKERS.
type Config struct {
	// Hosts lists the contact points of the target Scylla/Cassandra cluster.
	Hosts []string `envconfig:"HOSTS" default:"127.0.0.1"`

	// Port is the CQL native transport port.
	Port int `envconfig:"PORT" default:"9042"`

	// Keyspace holds matrix_meta, vector_meta, queue_meta, queue_data and
	// the per-operand block/segment tables.
	Keyspace string `envconfig:"KEYSPACE" default:"blas"`

	// Workers is the number of subtask queues (and worker goroutines/processes)
	// a scheduler fans an operation's subtasks across.
	Workers int `envconfig:"WORKERS" default:"4"`

	// BlockSize is the default tile edge length for newly created matrices
	// and the segment length for newly created vectors.
	BlockSize int64 `envconfig:"BLOCK_SIZE" default:"32"`

	// MatrixLoad is the default sparsity load factor used by the rmgen/rvgen
	// generation kernels when the caller doesn't specify one.
	MatrixLoad float64 `envconfig:"MATRIX_LOAD" default:"0.1"`

	// SchedulerSleep is the poll interval a scheduler uses while waiting for
	// a primary task's queue to report finished.
	SchedulerSleep time.Duration `envconfig:"SCHEDULER_SLEEP" default:"200us"`

	// WorkerSleep is the poll interval a worker uses while waiting for a new
	// primary task to appear in the shared worker queue.
	WorkerSleep time.Duration `envconfig:"WORKER_SLEEP" default:"5ms"`

	// ConvergenceIterLimit bounds the trsv/tbsv Jacobi-sweep outer loop so a
	// non-convergent system doesn't spin forever.
	ConvergenceIterLimit int `envconfig:"CONVERGENCE_ITER_LIMIT" default:"10000"`
}

// Validate checks field invariants that envconfig's struct tags can't express.
func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return fmt.Errorf("config: at least one host is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("config: port must be positive, got %d", c.Port)
	}
	if c.Keyspace == "" {
		return fmt.Errorf("config: keyspace must not be empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("config: block size must be positive, got %d", c.BlockSize)
	}
	if c.MatrixLoad <= 0 || c.MatrixLoad > 1 {
		return fmt.Errorf("config: matrix load must be in (0, 1], got %f", c.MatrixLoad)
	}
	if c.ConvergenceIterLimit <= 0 {
		return fmt.Errorf("config: convergence iter limit must be positive, got %d", c.ConvergenceIterLimit)
	}
	return nil
}

// New parses Config from the environment (prefix SCYLLABLAS_) and validates it.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("SCYLLABLAS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Strs("hosts", cfg.Hosts).
		Int("port", cfg.Port).
		Str("keyspace", cfg.Keyspace).
		Int("workers", cfg.Workers).
		Int64("block_size", cfg.BlockSize).
		Float64("matrix_load", cfg.MatrixLoad).
		Dur("scheduler_sleep", cfg.SchedulerSleep).
		Dur("worker_sleep", cfg.WorkerSleep).
		Int("convergence_iter_limit", cfg.ConvergenceIterLimit).
		Msg("configuration loaded")

	return &cfg, nil
}

// NewForTesting returns a Config with defaults suitable for fakestore-backed
// unit tests, bypassing environment parsing.
func NewForTesting() *Config {
	return &Config{
		Hosts:                []string{"127.0.0.1"},
		Port:                 9042,
		Keyspace:             "blas_test",
		Workers:              2,
		BlockSize:            8,
		MatrixLoad:           0.1,
		SchedulerSleep:       time.Millisecond,
		WorkerSleep:          time.Millisecond,
		ConvergenceIterLimit: 1000,
	}
}
