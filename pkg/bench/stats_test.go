package bench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"libris/pkg/core/index"
	"libris/pkg/workload"
)

func TestSummarize(t *testing.T) {
	ms := time.Millisecond

	s := summarize([]time.Duration{1 * ms, 2 * ms, 3 * ms, 4 * ms})
	assert.Equal(t, 2500*time.Microsecond, s.mean)
	assert.Equal(t, 1*ms, s.min)
	assert.Equal(t, 4*ms, s.max)
	// sample std-dev: sqrt(5/3) ms
	assert.InDelta(t, float64(1290994*time.Nanosecond), float64(s.stddev), 1000)

	one := summarize([]time.Duration{7 * ms})
	assert.Equal(t, summary{mean: 7 * ms, min: 7 * ms, max: 7 * ms}, one)

	assert.Equal(t, summary{}, summarize(nil))
}

func TestDeriveSeed(t *testing.T) {
	assert.Equal(t, deriveSeed(1, 100, 0), deriveSeed(1, 100, 0))
	assert.NotEqual(t, deriveSeed(1, 100, 0), deriveSeed(1, 100, 1))
	assert.NotEqual(t, deriveSeed(1, 100, 0), deriveSeed(1, 200, 0))
	assert.NotEqual(t, deriveSeed(1, 100, 0), deriveSeed(2, 100, 0))
}

func TestCompareKeys(t *testing.T) {
	a := Key{Variant: index.KindBTree, DatasetSize: 10, Operation: workload.KindLookup}
	b := Key{Variant: index.KindBTree, DatasetSize: 10, Operation: workload.KindDelete}
	c := Key{Variant: index.KindBTree, DatasetSize: 20, Operation: workload.KindInsert}
	d := Key{Variant: index.KindHash, DatasetSize: 5, Operation: workload.KindInsert}

	assert.Negative(t, CompareKeys(a, b))
	assert.Negative(t, CompareKeys(b, c))
	assert.Negative(t, CompareKeys(c, d))
	assert.Zero(t, CompareKeys(a, a))
}
