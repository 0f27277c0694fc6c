package index

import (
	"libris/pkg/common"

	"github.com/google/btree"
)

// BTree keeps entries ordered by (key, id) in a google/btree.
type BTree struct {
	tree *btree.BTreeG[common.Entry]
}

func NewBTree(degree int) *BTree {
	return &BTree{
		tree: btree.NewG(degree, common.Entry.Less),
	}
}

func (bt *BTree) Insert(key, id string) {
	bt.tree.ReplaceOrInsert(common.Entry{Key: key, ID: id})
}

func (bt *BTree) Lookup(key string) []string {
	ids := make([]string, 0)
	// 空 ID 是该 key 下最小的条目
	bt.tree.AscendGreaterOrEqual(common.Entry{Key: key}, func(e common.Entry) bool {
		if e.Key != key {
			return false
		}
		ids = append(ids, e.ID)
		return true
	})
	return ids
}

func (bt *BTree) Delete(key, id string) {
	bt.tree.Delete(common.Entry{Key: key, ID: id})
}

func (bt *BTree) Range(lo, hi string) []string {
	ids := make([]string, 0)
	if lo > hi {
		return ids
	}
	bt.tree.AscendGreaterOrEqual(common.Entry{Key: lo}, func(e common.Entry) bool {
		if e.Key > hi {
			return false
		}
		ids = append(ids, e.ID)
		return true
	})
	return ids
}

func (bt *BTree) Len() int {
	return bt.tree.Len()
}

func (bt *BTree) Kind() Kind {
	return KindBTree
}
