package index

import (
	"errors"
	"fmt"
	"strings"
)

// Index hides the differences between linear scan, hash, B-tree and sorted array.
// A key maps to the set of record IDs sharing it; keys need not be unique.
type Index interface {
	// Insert adds id under key. Inserting an existing pair is a no-op.
	Insert(key, id string)
	// Lookup returns the IDs stored under key in ascending order, or an empty slice.
	Lookup(key string) []string
	// Delete removes id from key. Deleting a missing pair is a no-op.
	Delete(key, id string)
	// Range returns the IDs of every entry with lo <= key <= hi, ordered by (key, id).
	Range(lo, hi string) []string
	// Len reports the number of (key, id) entries.
	Len() int
	Kind() Kind
}

type Kind string

const (
	KindLinear Kind = "linear"
	KindHash   Kind = "hash"
	KindBTree  Kind = "btree"
	KindSorted Kind = "sorted"
)

var ErrUnknownKind = errors.New("unknown index kind")

// Kinds lists every variant in a stable order.
func Kinds() []Kind {
	return []Kind{KindLinear, KindHash, KindBTree, KindSorted}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Ordered reports whether the variant answers Range without a full scan.
func (k Kind) Ordered() bool {
	return k == KindBTree || k == KindSorted
}

type options struct {
	degree int
}

type Option func(*options)

// WithDegree sets the branching degree of the btree variant.
func WithDegree(degree int) Option {
	return func(o *options) {
		if degree >= 2 {
			o.degree = degree
		}
	}
}

func New(kind Kind, opts ...Option) (Index, error) {
	o := options{degree: 32}
	for _, opt := range opts {
		opt(&o)
	}

	switch kind {
	case KindLinear:
		return NewLinear(), nil
	case KindHash:
		return NewHash(), nil
	case KindBTree:
		return NewBTree(o.degree), nil
	case KindSorted:
		return NewSorted(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
