package index

import (
	"slices"

	"libris/pkg/common"
)

// Hash keeps one sorted ID bucket per key.
type Hash struct {
	buckets map[string][]string
	size    int
}

func NewHash() *Hash {
	return &Hash{buckets: make(map[string][]string)}
}

func (h *Hash) Insert(key, id string) {
	bucket := h.buckets[key]
	pos, found := slices.BinarySearch(bucket, id)
	if found {
		return
	}
	h.buckets[key] = slices.Insert(bucket, pos, id)
	h.size++
}

func (h *Hash) Lookup(key string) []string {
	bucket, ok := h.buckets[key]
	if !ok {
		return []string{}
	}
	return slices.Clone(bucket)
}

func (h *Hash) Delete(key, id string) {
	bucket, ok := h.buckets[key]
	if !ok {
		return
	}
	pos, found := slices.BinarySearch(bucket, id)
	if !found {
		return
	}
	h.size--
	if len(bucket) == 1 {
		delete(h.buckets, key)
		return
	}
	h.buckets[key] = slices.Delete(bucket, pos, pos+1)
}

// Range has no ordering to exploit and falls back to a scan of every bucket.
func (h *Hash) Range(lo, hi string) []string {
	if lo > hi {
		return []string{}
	}
	var matched []common.Entry
	for key, bucket := range h.buckets {
		if key < lo || key > hi {
			continue
		}
		for _, id := range bucket {
			matched = append(matched, common.Entry{Key: key, ID: id})
		}
	}
	slices.SortFunc(matched, common.Entry.Compare)
	return common.IDs(matched)
}

func (h *Hash) Len() int {
	return h.size
}

func (h *Hash) Kind() Kind {
	return KindHash
}
