package workload

import (
	"maps"
	"math/rand/v2"
	"slices"

	"libris/pkg/common"
)

// sampler draws field values in proportion to how often they occur.
type sampler struct {
	values []string
	cum    []int // cum[i] = occurrences of values[0..i]
}

func newSampler(books []common.Book, f common.Field) *sampler {
	counts := make(map[string]int)
	for _, b := range books {
		counts[f.Of(b)]++
	}
	return newCountSampler(counts)
}

// newPopularitySampler draws book IDs weighted by one plus the number of times
// users have borrowed them.
func newPopularitySampler(books []common.Book, users []common.User) *sampler {
	counts := make(map[string]int, len(books))
	for _, b := range books {
		counts[b.ID] = 1
	}
	for _, u := range users {
		for _, id := range slices.Concat(u.History, u.Borrowed) {
			if _, ok := counts[id]; ok {
				counts[id]++
			}
		}
	}
	return newCountSampler(counts)
}

func newCountSampler(counts map[string]int) *sampler {
	s := &sampler{values: slices.Sorted(maps.Keys(counts))}
	s.cum = make([]int, len(s.values))
	total := 0
	for i, v := range s.values {
		total += counts[v]
		s.cum[i] = total
	}
	return s
}

func (s *sampler) empty() bool {
	return len(s.values) == 0
}

func (s *sampler) draw(r *rand.Rand) string {
	x := r.IntN(s.cum[len(s.cum)-1]) + 1
	i, _ := slices.BinarySearch(s.cum, x)
	return s.values[i]
}

// prefixBounds turns key into a range matching every value that starts with
// key minus its last rune.
func prefixBounds(key string) (lo, hi string) {
	runes := []rune(key)
	if len(runes) > 1 {
		runes = runes[:len(runes)-1]
	}
	lo = string(runes)
	return lo, lo + "\U0010FFFF"
}
