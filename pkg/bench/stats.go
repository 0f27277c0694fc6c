package bench

import (
	"math"
	"time"
)

// series collects the per-repetition totals of one operation kind.
type series struct {
	totals []time.Duration
	ops    int
	failed int
}

func (s *series) add(total time.Duration, ops int) {
	s.totals = append(s.totals, total)
	s.ops += ops
}

// summary holds descriptive statistics over a series.
type summary struct {
	mean, stddev, min, max time.Duration
}

// summarize uses the sample standard deviation (n-1); it is zero below two samples.
func summarize(ds []time.Duration) summary {
	if len(ds) == 0 {
		return summary{}
	}
	s := summary{min: ds[0], max: ds[0]}
	var sum float64
	for _, d := range ds {
		sum += float64(d)
		s.min = min(s.min, d)
		s.max = max(s.max, d)
	}
	mean := sum / float64(len(ds))
	s.mean = time.Duration(math.Round(mean))
	if len(ds) < 2 {
		return s
	}
	var sq float64
	for _, d := range ds {
		diff := float64(d) - mean
		sq += diff * diff
	}
	s.stddev = time.Duration(math.Round(math.Sqrt(sq / float64(len(ds)-1))))
	return s
}

// deriveSeed mixes the run seed with a configuration so every variant replays
// the same workload for a given (size, repetition).
func deriveSeed(seed uint64, size, rep int) uint64 {
	z := seed ^ uint64(size)*0x9e3779b97f4a7c15 ^ uint64(rep+1)*0xbf58476d1ce4e5b9
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
