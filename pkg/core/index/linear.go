package index

import (
	"slices"

	"libris/pkg/common"
)

// Linear is the baseline: an append-only list scanned on every read.
// present only guards against duplicate inserts; reads never consult it.
type Linear struct {
	entries []common.Entry
	present map[common.Entry]struct{}
}

func NewLinear() *Linear {
	return &Linear{present: make(map[common.Entry]struct{})}
}

func (l *Linear) Insert(key, id string) {
	e := common.Entry{Key: key, ID: id}
	if _, ok := l.present[e]; ok {
		return
	}
	l.present[e] = struct{}{}
	l.entries = append(l.entries, e)
}

func (l *Linear) Lookup(key string) []string {
	ids := make([]string, 0)
	for _, e := range l.entries {
		if e.Key == key {
			ids = append(ids, e.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (l *Linear) Delete(key, id string) {
	e := common.Entry{Key: key, ID: id}
	if _, ok := l.present[e]; !ok {
		return
	}
	delete(l.present, e)
	for i, cur := range l.entries {
		if cur == e {
			l.entries = slices.Delete(l.entries, i, i+1)
			return
		}
	}
}

func (l *Linear) Range(lo, hi string) []string {
	return scanRange(l.entries, lo, hi)
}

func (l *Linear) Len() int {
	return len(l.entries)
}

func (l *Linear) Kind() Kind {
	return KindLinear
}

// scanRange filters entries by lo <= key <= hi and orders the matches by (key, id).
func scanRange(entries []common.Entry, lo, hi string) []string {
	if lo > hi {
		return []string{}
	}
	var matched []common.Entry
	for _, e := range entries {
		if e.Key >= lo && e.Key <= hi {
			matched = append(matched, e)
		}
	}
	slices.SortFunc(matched, common.Entry.Compare)
	return common.IDs(matched)
}
