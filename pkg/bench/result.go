package bench

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"libris/pkg/core/index"
	"libris/pkg/workload"
)

// Result aggregates one operation kind of one (variant, dataset size) configuration.
// Durations are the time spent on that kind per repetition.
type Result struct {
	RunID       string        `json:"run_id"`
	Variant     index.Kind    `json:"variant"`
	DatasetSize int           `json:"dataset_size"`
	Operation   workload.Kind `json:"operation"`

	// Samples counts attempted repetitions; Failed of them were aborted by an error.
	Samples int `json:"samples"`
	Failed  int `json:"failed"`
	// Operations is the number of operations of this kind over all successful repetitions.
	Operations int `json:"operations"`

	Mean      time.Duration `json:"mean_ns"`
	StdDev    time.Duration `json:"stddev_ns"`
	Min       time.Duration `json:"min_ns"`
	Max       time.Duration `json:"max_ns"`
	MeanPerOp time.Duration `json:"mean_per_op_ns"`

	FootprintBytes uint64    `json:"footprint_bytes"`
	Timestamp      time.Time `json:"timestamp"`
}

// Key identifies a result across runs.
type Key struct {
	Variant     index.Kind
	DatasetSize int
	Operation   workload.Kind
}

func (r Result) Key() Key {
	return Key{Variant: r.Variant, DatasetSize: r.DatasetSize, Operation: r.Operation}
}

// SuccessRate is the share of repetitions that completed.
func (r Result) SuccessRate() float64 {
	if r.Samples == 0 {
		return 0
	}
	return float64(r.Samples-r.Failed) / float64(r.Samples)
}

// CompareKeys orders results by variant, size, then operation kind.
func CompareKeys(a, b Key) int {
	if c := cmp.Compare(a.Variant, b.Variant); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DatasetSize, b.DatasetSize); c != 0 {
		return c
	}
	return cmp.Compare(kindRank(a.Operation), kindRank(b.Operation))
}

func kindRank(k workload.Kind) int {
	if i := slices.Index(workload.Kinds(), k); i >= 0 {
		return i
	}
	return len(workload.Kinds())
}

// Report is the outcome of one Run.
type Report struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Processor   string    `json:"processor"`
	GoVersion   string    `json:"go_version"`
	Sizes       []int     `json:"sizes"`
	Experiments int       `json:"experiments"`
	Operations  int       `json:"operations"`
	Seed        uint64    `json:"seed"`
	Canceled    bool      `json:"canceled,omitempty"`
	Results     []Result  `json:"results"`
}

// Sink persists a finished (or canceled) run.
type Sink interface {
	Save(ctx context.Context, rep *Report) error
}

// WriteSummary prints one table per dataset size.
func (r *Report) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "run %s on %s (%s)\t\n", r.RunID, r.Processor, r.GoVersion)
	if r.Canceled {
		fmt.Fprintln(tw, "run canceled, results are partial\t")
	}

	bySize := make(map[int][]Result)
	for _, res := range r.Results {
		bySize[res.DatasetSize] = append(bySize[res.DatasetSize], res)
	}
	for _, size := range slices.Sorted(maps.Keys(bySize)) {
		fmt.Fprintf(tw, "\ndataset size %d\t\n", size)
		fmt.Fprintln(tw, "variant\toperation\tsamples\tsuccess\tops\tmean\tstddev\tmin\tmax\tper op\t")
		results := bySize[size]
		slices.SortFunc(results, func(a, b Result) int { return CompareKeys(a.Key(), b.Key()) })
		for _, res := range results {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f%%\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
				res.Variant, res.Operation, res.Samples, res.SuccessRate()*100, res.Operations,
				ms(res.Mean), ms(res.StdDev), ms(res.Min), ms(res.Max), res.MeanPerOp)
		}
	}
	return tw.Flush()
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}
