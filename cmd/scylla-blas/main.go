// Command scylla-blas is the reference control surface for the engine
// (spec.md §6): init bootstraps the keyspace and shared worker queue, worker
// runs the dispatch loop, benchmark exercises one named operation, and
// health probes store connectivity. Host/port/keyspace are read from the
// environment by internal/config rather than from flags, matching the
// outbox-worker command's config.New()-driven style; per-command knobs
// (block size, problem size, worker count, autoclean) are flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scylla-blas",
	Short: "Control surface for the distributed sparse/dense BLAS engine",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
