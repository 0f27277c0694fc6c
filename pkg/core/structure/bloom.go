package structure

import (
	"hash/fnv"
	"math"
)

// BloomFilter answers "definitely absent" for string keys. It is not safe for
// concurrent writes.
type BloomFilter struct {
	bits  []uint64
	k     uint32
	m     uint32
	count int
}

// NewBloomFilter sizes the filter for n keys at false-positive rate p.
func NewBloomFilter(n int, p float64) *BloomFilter {
	if n < 1 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	// 理论最佳公式
	// m = - (n * ln(p)) / (ln(2)^2)
	// k = (m / n) * ln(2)
	m := uint32(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	k := uint32(math.Ceil(float64(m) / float64(n) * math.Ln2))
	m = max(m, 64)
	k = max(k, 1)

	return &BloomFilter{
		bits: make([]uint64, (m+63)/64),
		k:    k,
		m:    m,
	}
}

func (bf *BloomFilter) Add(key string) {
	h1, h2 := hashes(key)
	for i := uint32(0); i < bf.k; i++ {
		pos := (h1 + i*h2) % bf.m
		bf.bits[pos/64] |= 1 << (pos % 64)
	}
	bf.count++
}

// MayContain is false only for keys never added.
func (bf *BloomFilter) MayContain(key string) bool {
	h1, h2 := hashes(key)
	for i := uint32(0); i < bf.k; i++ {
		pos := (h1 + i*h2) % bf.m
		if bf.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

func (bf *BloomFilter) Len() int {
	return bf.count
}

// hashes derives the two base hashes of double hashing from one FNV-64a sum.
func hashes(key string) (uint32, uint32) {
	h := fnv.New64a()
	h.Write([]byte(key))
	sum := h.Sum64()
	return uint32(sum), uint32(sum>>32) | 1
}
