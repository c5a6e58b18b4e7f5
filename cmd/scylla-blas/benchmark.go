package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scyllablas/scyllablas/internal/config"
	"github.com/scyllablas/scyllablas/internal/logger"
	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/scheduler"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/wire"
)

var (
	benchRows      int64
	benchCols      int64
	benchBlockSize int64
	benchWorkers   int
	benchLoad      float64
	benchAutoclean bool
	benchIterLimit int
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark <op>",
	Short: "Run one BLAS operation against freshly generated operands and report its elapsed time",
	Long: `benchmark exercises one named operation (dot, axpy, copy, swap, scal, nrm2,
asum, iamax, gemv, gbmv, ger, trsv, tbsv, gemm, syrk, syr2k) against float64
operands populated by the rmgen/rvgen generation kernels. Block size, problem
size, and worker count are the tunable knobs spec.md §6 names for the
reference CLI.`,
	Args: cobra.ExactArgs(1),
	RunE: runBenchmark,
}

func init() {
	benchmarkCmd.Flags().Int64Var(&benchRows, "rows", 256, "row count for matrix ops, vector length for vector-only ops")
	benchmarkCmd.Flags().Int64Var(&benchCols, "cols", 256, "column count for matrix ops")
	benchmarkCmd.Flags().Int64Var(&benchBlockSize, "block-size", 0, "block/segment edge length (0 = config default)")
	benchmarkCmd.Flags().IntVar(&benchWorkers, "workers", 0, "subtask fan-out width (0 = config default)")
	benchmarkCmd.Flags().Float64Var(&benchLoad, "load", 0, "sparse fill ratio for generated operands (0 = config default)")
	benchmarkCmd.Flags().BoolVar(&benchAutoclean, "autoclean", true,
		"drop benchmark operands after the run (spec.md §9 adopts the header's perform_benchmark(..., autoclean) signature over the source's)")
	benchmarkCmd.Flags().IntVar(&benchIterLimit, "iter-limit", 0, "trsv/tbsv convergence iteration cap (0 = config default)")
	rootCmd.AddCommand(benchmarkCmd)
}

// benchOperands holds whichever operand handles a benchmark run created, so
// autoclean can drop exactly the ones that exist regardless of which op ran.
type benchOperands struct {
	x, y    *vector.Handle[float64]
	a, b, c *matrix.Handle[float64]
}

func (o *benchOperands) drop(ctx context.Context) {
	if o == nil {
		return
	}
	for _, v := range []*vector.Handle[float64]{o.x, o.y} {
		if v != nil {
			_ = v.Drop(ctx)
		}
	}
	for _, m := range []*matrix.Handle[float64]{o.a, o.b, o.c} {
		if m != nil {
			_ = m.Drop(ctx)
		}
	}
}

// idSeq hands out collision-free operand ids for one benchmark run. Process
// uptime at startup seeds it so back-to-back runs in the same keyspace don't
// collide even when --autoclean=false leaves a prior run's tables behind.
type idSeq struct{ next int64 }

func newIDSeq() *idSeq { return &idSeq{next: time.Now().UnixNano() % 1_000_000_000} }
func (s *idSeq) take() int64 {
	s.next++
	return s.next
}

type benchRunner struct {
	setup func(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, seq *idSeq) (*benchOperands, error)
	run   func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error
}

func genVector(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, id, length, blockSize int64, load float64) (*vector.Handle[float64], error) {
	x, err := vector.Init[float64](ctx, sess, id, length, blockSize)
	if err != nil {
		return nil, err
	}
	if err := scheduler.Rvgen[float64](ctx, s, wire.OpDRVGEN, x, id, load); err != nil {
		return x, err
	}
	return x, nil
}

func genMatrix(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, id, rows, cols, blockSize int64, load float64) (*matrix.Handle[float64], error) {
	a, err := matrix.Init[float64](ctx, sess, id, rows, cols, blockSize)
	if err != nil {
		return nil, err
	}
	if err := scheduler.Rmgen[float64](ctx, s, wire.OpDRMGEN, a, id, load); err != nil {
		return a, err
	}
	return a, nil
}

func vectorPairSetup(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, seq *idSeq) (*benchOperands, error) {
	x, err := genVector(ctx, sess, s, seq.take(), benchRows, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{x: x}, err
	}
	y, err := genVector(ctx, sess, s, seq.take(), benchRows, benchBlockSize, benchLoad)
	return &benchOperands{x: x, y: y}, err
}

func vectorSingleSetup(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, seq *idSeq) (*benchOperands, error) {
	x, err := genVector(ctx, sess, s, seq.take(), benchRows, benchBlockSize, benchLoad)
	return &benchOperands{x: x}, err
}

// gemvSetup builds A (rows x cols), X (length cols), Y (length rows): the
// shape gemv/gbmv need (spec.md §4.3 "Y := alpha*op(A)*X + beta*Y").
func gemvSetup(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, seq *idSeq) (*benchOperands, error) {
	a, err := genMatrix(ctx, sess, s, seq.take(), benchRows, benchCols, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{a: a}, err
	}
	x, err := genVector(ctx, sess, s, seq.take(), benchCols, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{a: a, x: x}, err
	}
	y, err := genVector(ctx, sess, s, seq.take(), benchRows, benchBlockSize, benchLoad)
	return &benchOperands{a: a, x: x, y: y}, err
}

// gerSetup builds X (length rows), Y (length cols), and an empty A (rows x
// cols) for the rank-1 update to write into; A starts at zero rather than
// pre-populated so the update's result is exactly alpha*X*Y^T.
func gerSetup(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, seq *idSeq) (*benchOperands, error) {
	x, err := genVector(ctx, sess, s, seq.take(), benchRows, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{x: x}, err
	}
	y, err := genVector(ctx, sess, s, seq.take(), benchCols, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{x: x, y: y}, err
	}
	a, err := matrix.Init[float64](ctx, sess, seq.take(), benchRows, benchCols, benchBlockSize)
	return &benchOperands{x: x, y: y, a: a}, err
}

// triangularSetup builds a square A (rows x rows) and X (length rows) for
// trsv/tbsv. Convergence is not guaranteed for a randomly generated system
// (spec.md §7 "convergence-failure"); this benchmarks iteration throughput,
// not numerical behavior, so a failed convergence is still a valid timing.
func triangularSetup(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, seq *idSeq) (*benchOperands, error) {
	a, err := genMatrix(ctx, sess, s, seq.take(), benchRows, benchRows, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{a: a}, err
	}
	x, err := genVector(ctx, sess, s, seq.take(), benchRows, benchBlockSize, benchLoad)
	return &benchOperands{a: a, x: x}, err
}

// gemmSetup builds A (rows x cols), B (cols x cols), C (rows x cols): a
// shape where A*B is always conformant regardless of the rows/cols flags.
func gemmSetup(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, seq *idSeq) (*benchOperands, error) {
	a, err := genMatrix(ctx, sess, s, seq.take(), benchRows, benchCols, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{a: a}, err
	}
	b, err := genMatrix(ctx, sess, s, seq.take(), benchCols, benchCols, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{a: a, b: b}, err
	}
	c, err := matrix.Init[float64](ctx, sess, seq.take(), benchRows, benchCols, benchBlockSize)
	return &benchOperands{a: a, b: b, c: c}, err
}

// syrkSetup builds A (rows x cols) and C (rows x rows), the shape
// syrk's C := alpha*A*A^T + beta*C needs.
func syrkSetup(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, seq *idSeq) (*benchOperands, error) {
	a, err := genMatrix(ctx, sess, s, seq.take(), benchRows, benchCols, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{a: a}, err
	}
	c, err := matrix.Init[float64](ctx, sess, seq.take(), benchRows, benchRows, benchBlockSize)
	return &benchOperands{a: a, c: c}, err
}

// syr2kSetup builds A, B (both rows x cols) and C (rows x rows).
func syr2kSetup(ctx context.Context, sess *session.Session, s *scheduler.Scheduler, seq *idSeq) (*benchOperands, error) {
	a, err := genMatrix(ctx, sess, s, seq.take(), benchRows, benchCols, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{a: a}, err
	}
	b, err := genMatrix(ctx, sess, s, seq.take(), benchRows, benchCols, benchBlockSize, benchLoad)
	if err != nil {
		return &benchOperands{a: a, b: b}, err
	}
	c, err := matrix.Init[float64](ctx, sess, seq.take(), benchRows, benchRows, benchBlockSize)
	return &benchOperands{a: a, b: b, c: c}, err
}

var benchmarkOps = map[string]benchRunner{
	"dot": {setup: vectorPairSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		_, err := scheduler.Dot[float64](ctx, s, wire.OpDDOT, o.x, o.y)
		return err
	}},
	"axpy": {setup: vectorPairSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Axpy[float64](ctx, s, wire.OpDAXPY, 2, o.x, o.y)
	}},
	"copy": {setup: vectorPairSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Copy[float64](ctx, s, wire.OpDCOPY, o.x, o.y)
	}},
	"swap": {setup: vectorPairSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Swap[float64](ctx, s, wire.OpDSWAP, o.x, o.y)
	}},
	"scal": {setup: vectorSingleSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Scal[float64](ctx, s, wire.OpDSCAL, 2, o.x)
	}},
	"nrm2": {setup: vectorSingleSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		_, err := scheduler.Nrm2[float64](ctx, s, wire.OpDNRM2, o.x)
		return err
	}},
	"asum": {setup: vectorSingleSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		_, err := scheduler.Asum[float64](ctx, s, wire.OpDASUM, o.x)
		return err
	}},
	"iamax": {setup: vectorSingleSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		_, err := scheduler.Iamax[float64](ctx, s, wire.OpIDAMAX, o.x)
		return err
	}},
	"gemv": {setup: gemvSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Gemv[float64](ctx, s, wire.OpDGEMV, wire.NoTrans, 1, o.a, o.x, 0, o.y)
	}},
	"gbmv": {setup: gemvSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		kl, ku := bandwidth(o.a.Rows), bandwidth(o.a.Cols)
		return scheduler.Gbmv[float64](ctx, s, wire.OpDGBMV, wire.NoTrans, kl, ku, 1, o.a, o.x, 0, o.y)
	}},
	"ger": {setup: gerSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Ger[float64](ctx, s, wire.OpDGER, 1, o.x, o.y, o.a)
	}},
	"trsv": {setup: triangularSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Trsv[float64](ctx, s, wire.OpDTRSV, wire.Upper, wire.NoTrans, wire.NonUnit, o.a, o.x, benchIterLimit)
	}},
	"tbsv": {setup: triangularSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Tbsv[float64](ctx, s, wire.OpDTBSV, wire.Upper, wire.NoTrans, wire.NonUnit, bandwidth(o.a.Rows), o.a, o.x, benchIterLimit)
	}},
	"gemm": {setup: gemmSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Gemm[float64](ctx, s, wire.OpDGEMM, wire.NoTrans, wire.NoTrans, 1, o.a, o.b, 0, o.c)
	}},
	"syrk": {setup: syrkSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Syrk[float64](ctx, s, wire.OpDSYRK, wire.Upper, wire.NoTrans, 1, o.a, 0, o.c)
	}},
	"syr2k": {setup: syr2kSetup, run: func(ctx context.Context, s *scheduler.Scheduler, o *benchOperands) error {
		return scheduler.Syr2k[float64](ctx, s, wire.OpDSYR2K, wire.Upper, wire.NoTrans, 1, o.a, o.b, 0, o.c)
	}},
}

func bandwidth(n int64) int64 {
	if n <= 1 {
		return 0
	}
	if n <= 3 {
		return n - 1
	}
	return 2
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	op := args[0]
	runner, ok := benchmarkOps[op]
	if !ok {
		return fmt.Errorf("benchmark: unknown op %q", op)
	}

	lg := logger.New("benchmark")
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if benchBlockSize <= 0 {
		benchBlockSize = cfg.BlockSize
	}
	if benchWorkers <= 0 {
		benchWorkers = cfg.Workers
	}
	if benchLoad <= 0 {
		benchLoad = cfg.MatrixLoad
	}
	if benchIterLimit <= 0 {
		benchIterLimit = cfg.ConvergenceIterLimit
	}

	ctx := context.Background()
	store, err := session.Dial(session.DialOptions{Hosts: cfg.Hosts, Port: cfg.Port, Keyspace: cfg.Keyspace})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer store.Close()
	sess := session.New(store, cfg.Keyspace)

	s, err := scheduler.Open(ctx, sess, benchWorkers, cfg.SchedulerSleep)
	if err != nil {
		return fmt.Errorf("open scheduler: %w", err)
	}

	operands, setupErr := runner.setup(ctx, sess, s, newIDSeq())
	if benchAutoclean {
		defer operands.drop(ctx)
	}
	if setupErr != nil {
		return fmt.Errorf("benchmark: setup: %w", setupErr)
	}

	start := time.Now()
	runErr := runner.run(ctx, s, operands)
	elapsed := time.Since(start)

	lg.Info().Str("op", op).Dur("elapsed", elapsed).Int64("rows", benchRows).Int64("cols", benchCols).
		Int("workers", benchWorkers).Bool("ok", runErr == nil).Msg("benchmark complete")
	fmt.Printf("%s: %s\n", op, elapsed)

	if runErr != nil {
		return fmt.Errorf("benchmark: %s: %w", op, runErr)
	}
	return nil
}
