// Package bench measures the catalog under each index variant across dataset
// sizes and aggregates the timings per operation kind.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"libris/pkg/core"
	"libris/pkg/core/index"
	"libris/pkg/dataset"
	"libris/pkg/workload"
)

var ErrInvalidConfig = errors.New("invalid benchmark config")

const (
	logMsgRunStarted      = "benchmark run started"
	logMsgRunFinished     = "benchmark run finished"
	logMsgConfigStarted   = "configuration started"
	logMsgConfigFinished  = "configuration finished"
	logMsgRepetitionAbort = "repetition aborted"
	logMsgTraceWritten    = "workload trace written"
	logMsgSinkFailed      = "failed to save results"
	logMsgKindsSkipped    = "operation kinds skipped, dataset has no users"
	logMsgKindNotRun      = "operation kind never ran"
	logMsgReplayLoaded    = "replaying workload trace"
	logAttrRunID          = "run_id"
	logAttrVariant        = "variant"
	logAttrSize           = "size"
	logAttrRepetition     = "repetition"
	logAttrOp             = "op"
	logAttrError          = "error"
	logAttrDurationMS     = "duration_ms"
)

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Config struct {
	// Variants defaults to every index kind.
	Variants []index.Kind
	// Sizes lists dataset sizes explicitly. When empty, SizeLevels sizes are
	// spaced exponentially up to the dataset size.
	Sizes       []int
	SizeLevels  int
	Experiments int
	Seed        uint64
	// Workers > 1 runs (variant, size) configurations in parallel.
	Workers    int
	TreeDegree int
	// Verify checks catalog invariants after every repetition, outside timing.
	Verify bool
	// TraceDir, when set, receives the first workload of every size.
	TraceDir string
	// Replay, when set, is a trace file replayed in every repetition instead
	// of a generated workload. It should come from a run over the same dataset
	// and size; operations naming absent records fail their repetition.
	Replay string
	// Workload is used as-is except for Seed, which is derived per repetition.
	Workload workload.Config
}

type Harness struct {
	cfg   Config
	ds    *dataset.Dataset
	sizes []int
	kinds []workload.Kind
	log   Logger
	sinks []Sink
	now   func() time.Time
	apply func(workload.Op, *core.Catalog) error
	// replayed holds the loaded Replay trace; it is only read after New.
	replayed []workload.Op
}

type Option func(*Harness)

func WithLogger(l Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.log = l
		}
	}
}

// WithSinks adds destinations the report is saved to when Run ends.
func WithSinks(sinks ...Sink) Option {
	return func(h *Harness) {
		h.sinks = append(h.sinks, sinks...)
	}
}

// WithClock replaces time.Now for timing and timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) {
		if now != nil {
			h.now = now
		}
	}
}

func New(cfg Config, ds *dataset.Dataset, opts ...Option) (*Harness, error) {
	if ds == nil || len(ds.Books) == 0 {
		return nil, fmt.Errorf("%w: dataset has no books", ErrInvalidConfig)
	}
	if cfg.Experiments < 1 {
		return nil, fmt.Errorf("%w: experiments must be >= 1, got %d", ErrInvalidConfig, cfg.Experiments)
	}
	if len(cfg.Variants) == 0 {
		cfg.Variants = index.Kinds()
	}
	var variants []index.Kind
	for _, v := range cfg.Variants {
		k, err := index.ParseKind(string(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if !slices.Contains(variants, k) {
			variants = append(variants, k)
		}
	}
	cfg.Variants = variants
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.SizeLevels < 1 {
		cfg.SizeLevels = 6
	}

	sizes, err := resolveSizes(cfg, len(ds.Books))
	if err != nil {
		return nil, err
	}

	// Validate the workload once up front so configuration mistakes are not
	// reported per repetition.
	gen, err := workload.New(ds, cfg.Workload)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		cfg:   cfg,
		ds:    ds,
		sizes: sizes,
		kinds: gen.Kinds(),
		log:   slog.New(slog.DiscardHandler),
		now:   time.Now,
		apply: workload.Op.Apply,
	}
	for _, opt := range opts {
		opt(h)
	}

	skipped := gen.Skipped()
	if cfg.Replay != "" {
		ops, err := workload.LoadTrace(cfg.Replay)
		if err != nil {
			return nil, fmt.Errorf("load replay trace: %w", err)
		}
		if len(ops) == 0 {
			return nil, fmt.Errorf("%w: replay trace %s is empty", ErrInvalidConfig, cfg.Replay)
		}
		h.replayed = ops
		h.kinds = nil
		skipped = nil
		for _, k := range workload.Kinds() {
			if slices.ContainsFunc(ops, func(op workload.Op) bool { return op.Kind == k }) {
				h.kinds = append(h.kinds, k)
			}
		}
		h.log.Info(logMsgReplayLoaded, "path", cfg.Replay, logAttrOp, len(ops))
	}
	if len(skipped) > 0 {
		h.log.Warn(logMsgKindsSkipped, "kinds", skipped)
	}
	return h, nil
}

func resolveSizes(cfg Config, available int) ([]int, error) {
	if len(cfg.Sizes) == 0 {
		return dataset.Sizes(available, cfg.SizeLevels), nil
	}
	var sizes []int
	for _, s := range cfg.Sizes {
		if s < 1 {
			return nil, fmt.Errorf("%w: dataset size must be >= 1, got %d", ErrInvalidConfig, s)
		}
		sizes = append(sizes, min(s, available))
	}
	slices.Sort(sizes)
	return slices.Compact(sizes), nil
}

// Sizes returns the dataset sizes the run will cover.
func (h *Harness) Sizes() []int {
	return slices.Clone(h.sizes)
}

type job struct {
	variant index.Kind
	size    int
}

// Run benchmarks every (variant, size) configuration. Cancellation is checked
// before each repetition; a canceled run still returns the partial report,
// saved to every sink, together with the context error.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	rep := &Report{
		RunID:       uuid.NewString(),
		StartedAt:   h.now(),
		Processor:   Processor(),
		GoVersion:   runtime.Version(),
		Sizes:       h.Sizes(),
		Experiments: h.cfg.Experiments,
		Operations:  h.cfg.Workload.Operations,
		Seed:        h.cfg.Seed,
	}
	if h.replayed != nil {
		rep.Operations = len(h.replayed)
	}
	h.log.Info(logMsgRunStarted, logAttrRunID, rep.RunID,
		"variants", len(h.cfg.Variants), "sizes", h.sizes, "experiments", h.cfg.Experiments)

	var jobs []job
	for _, size := range h.sizes {
		for _, v := range h.cfg.Variants {
			jobs = append(jobs, job{variant: v, size: size})
		}
	}
	results := make([][]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Workers)
	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := h.runConfig(gctx, rep.RunID, j)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return nil, err
	}

	for _, res := range results {
		rep.Results = append(rep.Results, res...)
	}
	rep.FinishedAt = h.now()
	rep.Canceled = ctx.Err() != nil

	h.log.Info(logMsgRunFinished, logAttrRunID, rep.RunID,
		"results", len(rep.Results), "canceled", rep.Canceled,
		logAttrDurationMS, toMilliseconds(rep.FinishedAt.Sub(rep.StartedAt)))

	saveCtx := context.WithoutCancel(ctx)
	var errs []error
	for _, s := range h.sinks {
		if err := s.Save(saveCtx, rep); err != nil {
			h.log.Error(logMsgSinkFailed, logAttrError, err.Error())
			errs = append(errs, err)
		}
	}
	if rep.Canceled {
		errs = append(errs, ctx.Err())
	}
	return rep, errors.Join(errs...)
}

func (h *Harness) runConfig(ctx context.Context, runID string, j job) ([]Result, error) {
	log := h.log
	log.Debug(logMsgConfigStarted, logAttrVariant, j.variant, logAttrSize, j.size)

	sample := h.ds.Sample(j.size, h.cfg.Seed)
	// fallbacks may emit kinds outside the mix, so every kind is tracked
	acc := make(map[workload.Kind]*series, len(workload.Kinds()))
	for _, k := range workload.Kinds() {
		acc[k] = &series{}
	}

	var base *workload.Generator
	if h.replayed == nil {
		var err error
		base, err = workload.New(sample, h.cfg.Workload)
		if err != nil {
			return nil, err
		}
	}

	var footprint uint64
	footprints := 0 // repetitions that built a catalog
	for rep := range h.cfg.Experiments {
		if ctx.Err() != nil {
			break
		}

		ops, err := h.opsFor(base, j, rep)
		if err != nil {
			return nil, err
		}

		c, heap, err := h.build(j.variant, sample)
		if err != nil {
			return nil, err
		}
		footprint += heap
		footprints++

		totals, counts, err := h.replay(c, ops)
		if err == nil && h.cfg.Verify {
			err = c.Verify()
		}
		if err != nil {
			log.Warn(logMsgRepetitionAbort, logAttrVariant, j.variant, logAttrSize, j.size,
				logAttrRepetition, rep, logAttrError, err.Error())
			for _, s := range acc {
				s.failed++
			}
			continue
		}
		for k, s := range acc {
			s.add(totals[k], counts[k])
		}
	}

	if footprints == 0 {
		return nil, nil
	}

	ts := h.now()
	results := make([]Result, 0, len(h.kinds))
	for _, k := range workload.Kinds() {
		s := acc[k]
		// A kind with no operations has nothing to report unless every
		// repetition failed, in which case the failures are the result.
		if s.ops == 0 && (len(s.totals) > 0 || !slices.Contains(h.kinds, k)) {
			if slices.Contains(h.kinds, k) {
				log.Warn(logMsgKindNotRun, logAttrVariant, j.variant, logAttrSize, j.size, logAttrOp, k)
			}
			continue
		}
		sum := summarize(s.totals)
		res := Result{
			RunID:       runID,
			Variant:     j.variant,
			DatasetSize: len(sample.Books),
			Operation:   k,
			Samples:     len(s.totals) + s.failed,
			Failed:      s.failed,
			Operations:  s.ops,
			Mean:        sum.mean,
			StdDev:      sum.stddev,
			Min:         sum.min,
			Max:         sum.max,
			Timestamp:   ts,
		}
		if s.ops > 0 {
			var total time.Duration
			for _, d := range s.totals {
				total += d
			}
			res.MeanPerOp = total / time.Duration(s.ops)
		}
		res.FootprintBytes = footprint / uint64(footprints)
		results = append(results, res)
	}

	log.Debug(logMsgConfigFinished, logAttrVariant, j.variant, logAttrSize, j.size)
	return results, nil
}

// opsFor returns the operations of one repetition, generated from a
// derived seed or taken from the replay trace.
func (h *Harness) opsFor(base *workload.Generator, j job, rep int) ([]workload.Op, error) {
	if h.replayed != nil {
		return h.replayed, nil
	}
	gen := base.WithSeed(deriveSeed(h.cfg.Seed, j.size, rep))
	ops, err := gen.Collect()
	if err != nil {
		return nil, fmt.Errorf("generate workload for size %d: %w", j.size, err)
	}
	if rep == 0 && h.cfg.TraceDir != "" && j.variant == h.cfg.Variants[0] {
		if err := h.writeTrace(gen, j.size); err != nil {
			return nil, err
		}
	}
	return ops, nil
}

// build populates a fresh catalog and reports the heap it retains.
// With several workers the figure includes their allocations too.
func (h *Harness) build(kind index.Kind, sample *dataset.Dataset) (*core.Catalog, uint64, error) {
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	opts := []core.Option{}
	if len(h.cfg.Workload.Fields) > 0 {
		opts = append(opts, core.WithFields(h.cfg.Workload.Fields...))
	}
	if h.cfg.TreeDegree > 0 {
		opts = append(opts, core.WithIndexOptions(index.WithDegree(h.cfg.TreeDegree)))
	}
	c, err := core.New(kind, opts...)
	if err != nil {
		return nil, 0, err
	}
	if _, err := core.Populate(c, sample.Books, sample.Users); err != nil {
		return nil, 0, fmt.Errorf("populate %s catalog: %w", kind, err)
	}

	runtime.GC()
	runtime.ReadMemStats(&after)
	runtime.KeepAlive(c)
	if after.HeapAlloc < before.HeapAlloc {
		return c, 0, nil
	}
	return c, after.HeapAlloc - before.HeapAlloc, nil
}

// replay applies ops in order and stops at the first failing one.
func (h *Harness) replay(c *core.Catalog, ops []workload.Op) (map[workload.Kind]time.Duration, map[workload.Kind]int, error) {
	totals := make(map[workload.Kind]time.Duration, len(h.kinds))
	counts := make(map[workload.Kind]int, len(h.kinds))
	for i, op := range ops {
		start := h.now()
		err := h.apply(op, c)
		elapsed := h.now().Sub(start)
		if err != nil {
			return nil, nil, fmt.Errorf("op %d (%s): %w", i, op, err)
		}
		totals[op.Kind] += elapsed
		counts[op.Kind]++
	}
	return totals, counts, nil
}

func (h *Harness) writeTrace(gen *workload.Generator, size int) error {
	if err := os.MkdirAll(h.cfg.TraceDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(h.cfg.TraceDir, fmt.Sprintf("workload-%d.trace", size))
	n, err := workload.WriteTrace(path, gen.Ops())
	if err != nil {
		return fmt.Errorf("write trace %s: %w", path, err)
	}
	h.log.Debug(logMsgTraceWritten, "path", path, logAttrOp, n)
	return nil
}

func toMilliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
