// Package workload generates reproducible sequences of catalog operations.
package workload

import (
	"errors"
	"fmt"
	"strings"

	"libris/pkg/common"
	"libris/pkg/core"
)

// Kind is the type of a single workload operation.
type Kind string

const (
	KindInsert    Kind = "insert"
	KindLookup    Kind = "lookup"
	KindRange     Kind = "range"
	KindRecommend Kind = "recommend"
	KindCheckout  Kind = "checkout"
	KindReturn    Kind = "return"
	KindDelete    Kind = "delete"
)

// RecommendLimit is the number of suggestions a recommend operation asks for.
const RecommendLimit = 10

var ErrUnknownOp = errors.New("unknown operation kind")

// Kinds lists every operation kind in report order.
func Kinds() []Kind {
	return []Kind{KindInsert, KindLookup, KindRange, KindRecommend, KindCheckout, KindReturn, KindDelete}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// DefaultMix is the relative weight of each kind when none is configured.
func DefaultMix() map[Kind]int {
	return map[Kind]int{
		KindInsert:    10,
		KindLookup:    45,
		KindRange:     10,
		KindRecommend: 5,
		KindCheckout:  15,
		KindReturn:    10,
		KindDelete:    5,
	}
}

// Op is one catalog call. Only the fields its Kind needs are set.
type Op struct {
	Kind   Kind         `json:"kind"`
	Field  common.Field `json:"field,omitempty"`
	Key    string       `json:"key,omitempty"`
	KeyHi  string       `json:"key_hi,omitempty"`
	UserID string       `json:"user_id,omitempty"`
	BookID string       `json:"book_id,omitempty"`
	Book   *common.Book `json:"book,omitempty"`
}

func (op Op) String() string {
	switch op.Kind {
	case KindInsert:
		if op.Book != nil {
			return fmt.Sprintf("insert %s", op.Book.ID)
		}
	case KindLookup:
		return fmt.Sprintf("lookup %s=%q", op.Field, op.Key)
	case KindRange:
		return fmt.Sprintf("range %s in [%q, %q]", op.Field, op.Key, op.KeyHi)
	case KindRecommend:
		return fmt.Sprintf("recommend for %s", op.BookID)
	case KindCheckout, KindReturn:
		return fmt.Sprintf("%s %s by %s", op.Kind, op.BookID, op.UserID)
	case KindDelete:
		return fmt.Sprintf("delete %s", op.BookID)
	}
	return string(op.Kind)
}

// Apply executes op against c and discards query results.
func (op Op) Apply(c *core.Catalog) error {
	switch op.Kind {
	case KindInsert:
		if op.Book == nil {
			return fmt.Errorf("%w: insert without book", core.ErrInvalidRecord)
		}
		return c.AddBook(*op.Book)
	case KindLookup:
		_, err := c.Search(op.Field, op.Key)
		return err
	case KindRange:
		_, err := c.SearchRange(op.Field, op.Key, op.KeyHi)
		return err
	case KindRecommend:
		_, err := c.Recommend(op.BookID, RecommendLimit)
		return err
	case KindCheckout:
		return c.Checkout(op.UserID, op.BookID)
	case KindReturn:
		return c.ReturnBook(op.UserID, op.BookID)
	case KindDelete:
		return c.RemoveBook(op.BookID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, op.Kind)
	}
}
