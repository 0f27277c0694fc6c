// Package storage persists benchmark results. Every store keeps one entry per
// (variant, dataset size, operation): saving a run overwrites the entries it
// measured and leaves the others in place.
package storage

import (
	"errors"
	"slices"
	"time"

	"libris/pkg/bench"
)

var ErrCorruptResults = errors.New("corrupt results file")

// Metadata describes the run that last wrote to a store.
type Metadata struct {
	RunID       string    `json:"run_id"`
	Processor   string    `json:"processor"`
	GoVersion   string    `json:"go_version"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Sizes       []int     `json:"sizes"`
	Experiments int       `json:"experiments"`
	Operations  int       `json:"operations"`
	Seed        uint64    `json:"seed"`
	Canceled    bool      `json:"canceled,omitempty"`
}

func metadataOf(rep *bench.Report) Metadata {
	return Metadata{
		RunID:       rep.RunID,
		Processor:   rep.Processor,
		GoVersion:   rep.GoVersion,
		StartedAt:   rep.StartedAt,
		FinishedAt:  rep.FinishedAt,
		Sizes:       slices.Clone(rep.Sizes),
		Experiments: rep.Experiments,
		Operations:  rep.Operations,
		Seed:        rep.Seed,
		Canceled:    rep.Canceled,
	}
}

// merge overlays fresh onto prior by key and returns the entries in key order.
func merge(prior, fresh []bench.Result) []bench.Result {
	byKey := make(map[bench.Key]bench.Result, len(prior)+len(fresh))
	for _, r := range prior {
		byKey[r.Key()] = r
	}
	for _, r := range fresh {
		byKey[r.Key()] = r
	}
	out := make([]bench.Result, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b bench.Result) int { return bench.CompareKeys(a.Key(), b.Key()) })
	return out
}
