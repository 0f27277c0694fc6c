package index

import (
	"slices"

	"libris/pkg/common"
)

// Sorted stores entries in one contiguous slice ordered by (key, id).
// Reads binary search; writes shift the tail, so insert and delete are O(n).
type Sorted struct {
	entries []common.Entry
}

func NewSorted() *Sorted {
	return &Sorted{}
}

func (s *Sorted) search(e common.Entry) (int, bool) {
	return slices.BinarySearchFunc(s.entries, e, common.Entry.Compare)
}

func (s *Sorted) Insert(key, id string) {
	e := common.Entry{Key: key, ID: id}
	pos, found := s.search(e)
	if found {
		return
	}
	s.entries = slices.Insert(s.entries, pos, e)
}

func (s *Sorted) Lookup(key string) []string {
	start, _ := s.search(common.Entry{Key: key})
	ids := make([]string, 0)
	for i := start; i < len(s.entries) && s.entries[i].Key == key; i++ {
		ids = append(ids, s.entries[i].ID)
	}
	return ids
}

func (s *Sorted) Delete(key, id string) {
	pos, found := s.search(common.Entry{Key: key, ID: id})
	if !found {
		return
	}
	s.entries = slices.Delete(s.entries, pos, pos+1)
}

func (s *Sorted) Range(lo, hi string) []string {
	ids := make([]string, 0)
	if lo > hi {
		return ids
	}
	start, _ := s.search(common.Entry{Key: lo})
	for i := start; i < len(s.entries) && s.entries[i].Key <= hi; i++ {
		ids = append(ids, s.entries[i].ID)
	}
	return ids
}

func (s *Sorted) Len() int {
	return len(s.entries)
}

func (s *Sorted) Kind() Kind {
	return KindSorted
}
