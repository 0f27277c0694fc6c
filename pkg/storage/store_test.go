package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris/pkg/bench"
	"libris/pkg/core/index"
	"libris/pkg/workload"
)

var _ bench.Sink = (*JSONStore)(nil)
var _ bench.Sink = (*SQLiteStore)(nil)

func testReport(runID string, mean time.Duration, keys ...bench.Key) *bench.Report {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rep := &bench.Report{
		RunID:       runID,
		StartedAt:   ts,
		FinishedAt:  ts.Add(time.Minute),
		Processor:   "Test CPU",
		GoVersion:   "go1.24.0",
		Sizes:       []int{100},
		Experiments: 5,
		Operations:  200,
		Seed:        7,
	}
	for _, k := range keys {
		rep.Results = append(rep.Results, bench.Result{
			RunID:          runID,
			Variant:        k.Variant,
			DatasetSize:    k.DatasetSize,
			Operation:      k.Operation,
			Samples:        5,
			Failed:         1,
			Operations:     40,
			Mean:           mean,
			StdDev:         mean / 10,
			Min:            mean / 2,
			Max:            mean * 2,
			MeanPerOp:      mean / 40,
			FootprintBytes: 4096,
			Timestamp:      ts,
		})
	}
	return rep
}

var (
	hashLookup  = bench.Key{Variant: index.KindHash, DatasetSize: 100, Operation: workload.KindLookup}
	btreeLookup = bench.Key{Variant: index.KindBTree, DatasetSize: 100, Operation: workload.KindLookup}
	btreeRange  = bench.Key{Variant: index.KindBTree, DatasetSize: 200, Operation: workload.KindRange}
)

func TestJSONStoreMergesByKey(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONStore(dir, "")
	assert.Equal(t, filepath.Join(dir, "results.json"), s.Path())

	meta, entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, meta.RunID)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testReport("run-1", time.Millisecond, hashLookup, btreeRange)))
	require.NoError(t, s.Save(ctx, testReport("run-2", 3*time.Millisecond, hashLookup, btreeLookup)))

	meta, entries, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "run-2", meta.RunID)
	assert.Equal(t, uint64(7), meta.Seed)
	require.Len(t, entries, 3)

	// ordered by variant, then size
	assert.Equal(t, btreeLookup, entries[0].Key())
	assert.Equal(t, btreeRange, entries[1].Key())
	assert.Equal(t, hashLookup, entries[2].Key())

	assert.Equal(t, "run-2", entries[0].RunID)
	assert.Equal(t, "run-1", entries[1].RunID, "other configurations survive")
	assert.Equal(t, 3*time.Millisecond, entries[2].Mean, "same key is overwritten")
	assert.Equal(t, 75*time.Microsecond, entries[2].MeanPerOp)

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestJSONStoreMovesCorruptFileAside(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONStore(filepath.Join(dir, "nested"), "out.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0644))

	_, _, err := s.Load()
	require.ErrorIs(t, err, ErrCorruptResults)

	require.NoError(t, s.Save(context.Background(), testReport("run-1", time.Millisecond, hashLookup)))

	backup, err := os.ReadFile(s.Path() + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(backup))

	_, entries, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreOverwritesSameKey(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	first := testReport("run-1", time.Millisecond, hashLookup, btreeRange)
	require.NoError(t, s.Save(ctx, first))
	second := testReport("run-2", 3*time.Millisecond, hashLookup, btreeLookup)
	second.StartedAt = second.StartedAt.Add(time.Hour)
	second.FinishedAt = second.FinishedAt.Add(time.Hour)
	require.NoError(t, s.Save(ctx, second))

	results, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byKey := make(map[bench.Key]bench.Result)
	for _, r := range results {
		byKey[r.Key()] = r
	}
	assert.Equal(t, "run-2", byKey[hashLookup].RunID)
	assert.Equal(t, 3*time.Millisecond, byKey[hashLookup].Mean)
	assert.Equal(t, "run-1", byKey[btreeRange].RunID)

	got := byKey[btreeRange]
	want := first.Results[1]
	assert.Equal(t, want.Samples, got.Samples)
	assert.Equal(t, want.Failed, got.Failed)
	assert.Equal(t, want.StdDev, got.StdDev)
	assert.Equal(t, want.FootprintBytes, got.FootprintBytes)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)
	assert.Equal(t, uint64(7), runs[1].Seed)
	assert.False(t, runs[1].Canceled)
	assert.True(t, second.StartedAt.Equal(runs[1].StartedAt))
}

func TestSQLiteStoreResavingRunIsIdempotent(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	rep := testReport("run-1", time.Millisecond, hashLookup)
	rep.Canceled = true
	require.NoError(t, s.Save(ctx, rep))
	require.NoError(t, s.Save(ctx, rep))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Canceled)

	results, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
