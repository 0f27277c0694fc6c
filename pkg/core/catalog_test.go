package core

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris/pkg/common"
	"libris/pkg/core/index"
)

func newTestCatalog(t *testing.T, kind index.Kind, opts ...Option) *Catalog {
	t.Helper()
	c, err := New(kind, opts...)
	require.NoError(t, err)
	return c
}

func addUsers(t *testing.T, c *Catalog, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, c.AddUser(common.User{ID: id, Name: "reader " + id}))
	}
}

func available(t *testing.T, c *Catalog, id string) int {
	t.Helper()
	b, ok := c.Book(id)
	require.True(t, ok, "book %q missing", id)
	return b.Available
}

func TestCheckoutScenario(t *testing.T) {
	for _, kind := range index.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			c := newTestCatalog(t, kind)
			require.NoError(t, c.AddBook(common.Book{ID: "1", Title: "Dune", Author: "Frank Herbert", Copies: 2}))
			addUsers(t, c, "7", "8", "9")

			require.NoError(t, c.Checkout("7", "1"))
			assert.Equal(t, 1, available(t, c, "1"))

			require.NoError(t, c.Checkout("8", "1"))
			assert.Equal(t, 0, available(t, c, "1"))

			err := c.Checkout("9", "1")
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.Equal(t, 0, available(t, c, "1"))
			u9, _ := c.User("9")
			assert.Empty(t, u9.Borrowed)

			require.NoError(t, c.ReturnBook("7", "1"))
			assert.Equal(t, 1, available(t, c, "1"))
			assert.Equal(t, 1, c.BorrowedCount("1"))
			require.NoError(t, c.Verify())
		})
	}
}

func TestCheckoutErrors(t *testing.T) {
	c := newTestCatalog(t, index.KindHash)
	require.NoError(t, c.AddBook(common.Book{ID: "b1", Title: "Emma", Copies: 3}))
	addUsers(t, c, "u1")

	assert.ErrorIs(t, c.Checkout("ghost", "b1"), ErrNotFound)
	assert.ErrorIs(t, c.Checkout("u1", "ghost"), ErrNotFound)

	require.NoError(t, c.Checkout("u1", "b1"))
	err := c.Checkout("u1", "b1")
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, available(t, c, "b1"))

	assert.ErrorIs(t, c.ReturnBook("ghost", "b1"), ErrNotFound)
	require.NoError(t, c.ReturnBook("u1", "b1"))
	assert.ErrorIs(t, c.ReturnBook("u1", "b1"), ErrNotBorrowed)
	assert.Equal(t, 3, available(t, c, "b1"))

	u, ok := c.User("u1")
	require.True(t, ok)
	assert.Equal(t, []string{"b1"}, u.History)
}

func TestCheckoutReturnRoundTrip(t *testing.T) {
	c := newTestCatalog(t, index.KindSorted)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.AddBook(common.Book{ID: fmt.Sprintf("b%d", i), Title: "T", Copies: i + 1}))
	}
	addUsers(t, c, "u1", "u2")
	require.NoError(t, c.Checkout("u2", "b3"))

	for _, b := range c.Books() {
		before := b.Available
		require.NoError(t, c.Checkout("u1", b.ID))
		require.NoError(t, c.ReturnBook("u1", b.ID))
		assert.Equal(t, before, available(t, c, b.ID), "book %s", b.ID)
	}
}

func TestSearch(t *testing.T) {
	for _, kind := range index.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			c := newTestCatalog(t, kind)
			require.NoError(t, c.AddBook(common.Book{ID: "b2", Title: "Dune Messiah", Author: "Frank Herbert", Copies: 1}))
			require.NoError(t, c.AddBook(common.Book{ID: "b1", Title: "Dune", Author: "Frank Herbert", Copies: 1}))
			require.NoError(t, c.AddBook(common.Book{ID: "b3", Title: "Emma", Author: "Jane Austen", Copies: 1}))

			books, err := c.Search(common.FieldAuthor, "Frank Herbert")
			require.NoError(t, err)
			require.Len(t, books, 2)
			assert.Equal(t, "b1", books[0].ID)
			assert.Equal(t, "b2", books[1].ID)

			books, err = c.Search(common.FieldTitle, "Neuromancer")
			require.NoError(t, err)
			assert.Empty(t, books)

			_, err = c.Search(common.FieldGenre, "Fiction")
			assert.ErrorIs(t, err, ErrUnsupportedField)
			_, err = c.SearchRange(common.Field("isbn"), "a", "b")
			assert.ErrorIs(t, err, ErrUnsupportedField)

			books, err = c.SearchRange(common.FieldTitle, "Dune", "Dune\U0010FFFF")
			require.NoError(t, err)
			require.Len(t, books, 2)
			assert.Equal(t, "Dune", books[0].Title)
			assert.Equal(t, "Dune Messiah", books[1].Title)
		})
	}
}

func TestAddAndRemoveBook(t *testing.T) {
	c := newTestCatalog(t, index.KindBTree)
	require.NoError(t, c.AddBook(common.Book{ID: "b1", Title: "Ulysses", Author: "James Joyce", Copies: 1}))
	assert.ErrorIs(t, c.AddBook(common.Book{ID: "b1", Title: "Other"}), ErrDuplicateID)
	assert.ErrorIs(t, c.AddBook(common.Book{ID: ""}), ErrInvalidRecord)
	assert.ErrorIs(t, c.AddBook(common.Book{ID: "neg", Copies: -1}), ErrInvalidRecord)

	addUsers(t, c, "u1")
	assert.ErrorIs(t, c.AddUser(common.User{ID: "u1"}), ErrDuplicateID)

	require.NoError(t, c.Checkout("u1", "b1"))
	err := c.RemoveBook("b1")
	assert.ErrorIs(t, err, ErrCheckedOut)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.ReturnBook("u1", "b1"))
	require.NoError(t, c.RemoveBook("b1"))
	assert.ErrorIs(t, c.RemoveBook("b1"), ErrNotFound)

	books, err := c.Search(common.FieldAuthor, "James Joyce")
	require.NoError(t, err)
	assert.Empty(t, books)
	assert.Equal(t, 0, c.Len())
	require.NoError(t, c.Verify())
}

func TestRemoveUserReturnsBooks(t *testing.T) {
	c := newTestCatalog(t, index.KindLinear)
	require.NoError(t, c.AddBook(common.Book{ID: "b1", Copies: 1}))
	require.NoError(t, c.AddBook(common.Book{ID: "b2", Copies: 2}))
	addUsers(t, c, "u1")
	require.NoError(t, c.Checkout("u1", "b1"))
	require.NoError(t, c.Checkout("u1", "b2"))

	require.NoError(t, c.RemoveUser("u1"))
	assert.Equal(t, 1, available(t, c, "b1"))
	assert.Equal(t, 2, available(t, c, "b2"))
	assert.ErrorIs(t, c.RemoveUser("u1"), ErrNotFound)
	require.NoError(t, c.Verify())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New("trie")
	assert.ErrorIs(t, err, index.ErrUnknownKind)

	_, err = New(index.KindHash, WithFields(common.Field("isbn")))
	assert.ErrorIs(t, err, ErrUnsupportedField)

	c := newTestCatalog(t, index.KindHash, WithFields(common.FieldID, common.FieldID, common.FieldGenre))
	assert.Equal(t, []common.Field{common.FieldID, common.FieldGenre}, c.Fields())

	store := newTestCatalog(t, index.KindHash, WithFields())
	assert.Empty(t, store.Fields())
	require.NoError(t, store.AddBook(common.Book{ID: "b1", Copies: 1}))
	_, err = store.Search(common.FieldID, "b1")
	assert.ErrorIs(t, err, ErrUnsupportedField)
}

// After any sequence of checkouts and returns, availability + holders == copies.
func TestAvailabilityInvariantUnderRandomLoans(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	c := newTestCatalog(t, index.KindBTree, WithIndexOptions(index.WithDegree(3)))
	for i := 0; i < 20; i++ {
		require.NoError(t, c.AddBook(common.Book{ID: fmt.Sprintf("b%02d", i), Title: fmt.Sprintf("t%d", i%4), Copies: r.IntN(4)}))
	}
	for i := 0; i < 8; i++ {
		addUsers(t, c, fmt.Sprintf("u%d", i))
	}

	for step := 0; step < 2000; step++ {
		uid := fmt.Sprintf("u%d", r.IntN(8))
		bid := fmt.Sprintf("b%02d", r.IntN(20))
		if r.IntN(2) == 0 {
			_ = c.Checkout(uid, bid)
		} else {
			_ = c.ReturnBook(uid, bid)
		}
		require.NoError(t, c.Verify(), "step %d", step)
	}

	for _, b := range c.Books() {
		assert.Equal(t, b.Copies, b.Available+c.BorrowedCount(b.ID))
	}
}

func TestPopulate(t *testing.T) {
	c := newTestCatalog(t, index.KindHash)
	books := []common.Book{
		{ID: "b1", Title: "A", Copies: 1},
		{ID: "b2", Title: "B", Copies: 2},
	}
	users := []common.User{
		{ID: "u1", Name: "Ann", Borrowed: []string{"b1", "missing"}},
		{ID: "u2", Name: "Bob", Borrowed: []string{"b1", "b2"}},
	}

	skipped, err := Populate(c, books, users)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped) // "missing" and the second copy of b1
	assert.Equal(t, 0, available(t, c, "b1"))
	assert.Equal(t, 1, available(t, c, "b2"))

	u2, ok := c.User("u2")
	require.True(t, ok)
	assert.Equal(t, []string{"b2"}, u2.Borrowed)
	require.NoError(t, c.Verify())

	_, err = Populate(c, books, nil)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestPopulateKeepsLoadedHistory(t *testing.T) {
	c := newTestCatalog(t, index.KindSorted)
	books := []common.Book{
		{ID: "b1", Title: "A", Copies: 1},
		{ID: "b2", Title: "B", Copies: 1},
	}
	users := []common.User{
		{ID: "u1", Name: "Ann", Borrowed: []string{"b1"}, History: []string{"b2", "b1"}},
		{ID: "u2", Name: "Bob", Borrowed: []string{"b2"}},
	}

	_, err := Populate(c, books, users)
	require.NoError(t, err)

	u1, _ := c.User("u1")
	assert.Equal(t, []string{"b2", "b1"}, u1.History)
	u2, _ := c.User("u2")
	assert.Equal(t, []string{"b2"}, u2.History)

	require.NoError(t, c.ReturnBook("u1", "b1"))
	require.NoError(t, c.Checkout("u1", "b1"))
	u1, _ = c.User("u1")
	assert.Equal(t, []string{"b2", "b1", "b1"}, u1.History)
}

func TestRecommend(t *testing.T) {
	books := []common.Book{
		{ID: "b1", Genre: "sf", Rating: 4.2, Copies: 1},
		{ID: "b2", Genre: "sf", Rating: 4.8, Copies: 1},
		{ID: "b3", Genre: "sf", Rating: 4.2, Copies: 1},
		{ID: "b4", Genre: "crime", Rating: 5, Copies: 1},
	}
	for _, opts := range [][]Option{nil, {WithFields(common.FieldID, common.FieldGenre)}} {
		c := newTestCatalog(t, index.KindSorted, opts...)
		for _, b := range books {
			require.NoError(t, c.AddBook(b))
		}

		recs, err := c.Recommend("b1", 5)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "b2", recs[0].ID)
		assert.Equal(t, "b3", recs[1].ID)

		_, err = c.Recommend("nope", 5)
		assert.ErrorIs(t, err, ErrNotFound)

		top := c.TopRated(2)
		require.Len(t, top, 2)
		assert.Equal(t, "b4", top[0].ID)
		assert.Equal(t, "b2", top[1].ID)
	}
}

func TestStatsCountReadsAndHits(t *testing.T) {
	c := newTestCatalog(t, index.KindHash)
	require.NoError(t, c.AddBook(common.Book{ID: "b1", Title: "Dune", Copies: 1}))
	_, _ = c.Search(common.FieldTitle, "Dune")
	_, _ = c.Search(common.FieldTitle, "Emma")

	snap := c.Stats()
	assert.EqualValues(t, 2, snap.Reads)
	assert.EqualValues(t, 1, snap.Hits)
	assert.EqualValues(t, 1, snap.Writes)

	c.ResetStats()
	assert.Zero(t, c.Stats().Reads)
}
