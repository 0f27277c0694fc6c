package core

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"libris/pkg/common"
	"libris/pkg/core/index"
	"libris/pkg/monitor"
)

// DefaultFields are the fields indexed when no WithFields option is given.
func DefaultFields() []common.Field {
	return []common.Field{common.FieldID, common.FieldTitle, common.FieldAuthor}
}

type member struct {
	id       string
	name     string
	borrowed map[string]struct{}
	history  []string
}

// Catalog is the sole owner of book and user records.
// All index writes go through its mutation methods, which keep every index in
// lock-step with the book store. A Catalog is not safe for concurrent use.
type Catalog struct {
	kind    index.Kind
	fields  []common.Field
	indexes map[common.Field]index.Index
	books   map[string]common.Book
	users   map[string]*member
	holders map[string]map[string]struct{} // bookID -> userIDs
	stats   *monitor.WorkloadStats
}

type settings struct {
	fields    []common.Field
	indexOpts []index.Option
}

type Option func(*settings)

// WithFields replaces the indexed fields. Passing none yields a store-only catalog.
func WithFields(fields ...common.Field) Option {
	return func(s *settings) {
		s.fields = fields
	}
}

func WithIndexOptions(opts ...index.Option) Option {
	return func(s *settings) {
		s.indexOpts = append(s.indexOpts, opts...)
	}
}

func New(kind index.Kind, opts ...Option) (*Catalog, error) {
	s := settings{fields: DefaultFields()}
	for _, opt := range opts {
		opt(&s)
	}

	if _, err := index.ParseKind(string(kind)); err != nil {
		return nil, err
	}

	c := &Catalog{
		kind:    kind,
		indexes: make(map[common.Field]index.Index, len(s.fields)),
		books:   make(map[string]common.Book),
		users:   make(map[string]*member),
		holders: make(map[string]map[string]struct{}),
		stats:   monitor.NewWorkloadStats(),
	}

	for _, f := range s.fields {
		if !slices.Contains(common.Fields(), f) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedField, f)
		}
		if _, dup := c.indexes[f]; dup {
			continue
		}
		idx, err := index.New(kind, s.indexOpts...)
		if err != nil {
			return nil, err
		}
		c.indexes[f] = idx
		c.fields = append(c.fields, f)
	}
	return c, nil
}

func (c *Catalog) Kind() index.Kind {
	return c.kind
}

// Fields returns the indexed fields in configuration order.
func (c *Catalog) Fields() []common.Field {
	return slices.Clone(c.fields)
}

// AddBook stores b with every copy available and indexes it.
func (c *Catalog) AddBook(b common.Book) error {
	if b.ID == "" {
		return fmt.Errorf("%w: empty book id", ErrInvalidRecord)
	}
	if b.Copies < 0 {
		return fmt.Errorf("%w: book %q has %d copies", ErrInvalidRecord, b.ID, b.Copies)
	}
	if _, ok := c.books[b.ID]; ok {
		return fmt.Errorf("%w: book %q", ErrDuplicateID, b.ID)
	}

	b.Available = b.Copies
	c.books[b.ID] = b
	for _, f := range c.fields {
		c.indexes[f].Insert(f.Of(b), b.ID)
	}
	c.stats.RecordWrite()
	return nil
}

// RemoveBook deletes a book nobody currently holds.
func (c *Catalog) RemoveBook(id string) error {
	b, ok := c.books[id]
	if !ok {
		return fmt.Errorf("%w: book %q", ErrNotFound, id)
	}
	if n := len(c.holders[id]); n > 0 {
		return fmt.Errorf("%w: %q held by %d users", ErrCheckedOut, id, n)
	}

	for _, f := range c.fields {
		c.indexes[f].Delete(f.Of(b), id)
	}
	delete(c.books, id)
	delete(c.holders, id)
	c.stats.RecordWrite()
	return nil
}

// AddUser registers u with an empty borrowed set. u.Borrowed is ignored;
// outstanding loans are replayed through Checkout (see Populate).
func (c *Catalog) AddUser(u common.User) error {
	if u.ID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidRecord)
	}
	if _, ok := c.users[u.ID]; ok {
		return fmt.Errorf("%w: user %q", ErrDuplicateID, u.ID)
	}
	c.users[u.ID] = &member{
		id:       u.ID,
		name:     u.Name,
		borrowed: make(map[string]struct{}),
		history:  slices.Clone(u.History),
	}
	c.stats.RecordWrite()
	return nil
}

// RemoveUser returns every book the user holds, then forgets the user.
func (c *Catalog) RemoveUser(id string) error {
	m, ok := c.users[id]
	if !ok {
		return fmt.Errorf("%w: user %q", ErrNotFound, id)
	}
	for bookID := range m.borrowed {
		c.release(m, bookID)
	}
	delete(c.users, id)
	c.stats.RecordWrite()
	return nil
}

// Search returns the books whose field equals key, ordered by ID.
// A key with no match yields an empty result, not an error.
func (c *Catalog) Search(field common.Field, key string) ([]common.Book, error) {
	idx, ok := c.indexes[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedField, field)
	}
	return c.read(idx.Lookup(key)), nil
}

// SearchRange returns the books whose field lies in [lo, hi], ordered by (field, ID).
func (c *Catalog) SearchRange(field common.Field, lo, hi string) ([]common.Book, error) {
	idx, ok := c.indexes[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedField, field)
	}
	return c.read(idx.Range(lo, hi)), nil
}

func (c *Catalog) read(ids []string) []common.Book {
	c.stats.RecordRead()
	books := make([]common.Book, 0, len(ids))
	for _, id := range ids {
		if b, ok := c.books[id]; ok {
			books = append(books, b)
		}
	}
	if len(books) > 0 {
		c.stats.RecordHit()
	}
	return books
}

// Checkout lends one copy of bookID to userID. Nothing changes on failure.
func (c *Catalog) Checkout(userID, bookID string) error {
	return c.checkout(userID, bookID, true)
}

// checkout appends bookID to the user's history only when record is set.
func (c *Catalog) checkout(userID, bookID string, record bool) error {
	m, ok := c.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %q", ErrNotFound, userID)
	}
	b, ok := c.books[bookID]
	if !ok {
		return fmt.Errorf("%w: book %q", ErrNotFound, bookID)
	}
	if _, held := m.borrowed[bookID]; held {
		return fmt.Errorf("%w: user %q book %q", ErrAlreadyBorrowed, userID, bookID)
	}
	if b.Available == 0 {
		return fmt.Errorf("%w: book %q", ErrUnavailable, bookID)
	}

	b.Available--
	c.books[bookID] = b
	m.borrowed[bookID] = struct{}{}
	if record {
		m.history = append(m.history, bookID)
	}
	hs, ok := c.holders[bookID]
	if !ok {
		hs = make(map[string]struct{})
		c.holders[bookID] = hs
	}
	hs[userID] = struct{}{}
	c.stats.RecordWrite()
	return nil
}

// ReturnBook takes back the copy of bookID held by userID.
func (c *Catalog) ReturnBook(userID, bookID string) error {
	m, ok := c.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %q", ErrNotFound, userID)
	}
	if _, held := m.borrowed[bookID]; !held {
		return fmt.Errorf("%w: user %q book %q", ErrNotBorrowed, userID, bookID)
	}
	c.release(m, bookID)
	c.stats.RecordWrite()
	return nil
}

func (c *Catalog) release(m *member, bookID string) {
	delete(m.borrowed, bookID)
	if hs, ok := c.holders[bookID]; ok {
		delete(hs, m.id)
		if len(hs) == 0 {
			delete(c.holders, bookID)
		}
	}
	// RemoveBook refuses held books, so the book is still stored.
	b := c.books[bookID]
	b.Available++
	c.books[bookID] = b
}

func (c *Catalog) Book(id string) (common.Book, bool) {
	b, ok := c.books[id]
	return b, ok
}

func (c *Catalog) User(id string) (common.User, bool) {
	m, ok := c.users[id]
	if !ok {
		return common.User{}, false
	}
	return m.snapshot(), true
}

func (m *member) snapshot() common.User {
	return common.User{
		ID:       m.id,
		Name:     m.name,
		Borrowed: slices.Sorted(maps.Keys(m.borrowed)),
		History:  slices.Clone(m.history),
	}
}

// Books returns every stored book ordered by ID.
func (c *Catalog) Books() []common.Book {
	books := slices.Collect(maps.Values(c.books))
	slices.SortFunc(books, func(a, b common.Book) int { return cmp.Compare(a.ID, b.ID) })
	return books
}

// Users returns every user ordered by ID.
func (c *Catalog) Users() []common.User {
	users := make([]common.User, 0, len(c.users))
	for _, id := range slices.Sorted(maps.Keys(c.users)) {
		users = append(users, c.users[id].snapshot())
	}
	return users
}

func (c *Catalog) Len() int {
	return len(c.books)
}

func (c *Catalog) UserCount() int {
	return len(c.users)
}

// BorrowedCount is the number of users currently holding bookID.
func (c *Catalog) BorrowedCount(bookID string) int {
	return len(c.holders[bookID])
}

// Recommend returns up to n other books sharing the genre of bookID,
// best rated first. The genre index is used when configured.
func (c *Catalog) Recommend(bookID string, n int) ([]common.Book, error) {
	seed, ok := c.books[bookID]
	if !ok {
		return nil, fmt.Errorf("%w: book %q", ErrNotFound, bookID)
	}

	var candidates []common.Book
	if idx, ok := c.indexes[common.FieldGenre]; ok {
		candidates = c.read(idx.Lookup(seed.Genre))
	} else {
		for _, b := range c.books {
			if b.Genre == seed.Genre {
				candidates = append(candidates, b)
			}
		}
	}
	candidates = slices.DeleteFunc(candidates, func(b common.Book) bool { return b.ID == bookID })
	return topRated(candidates, n), nil
}

// TopRated returns the n best rated books of the whole catalog.
func (c *Catalog) TopRated(n int) []common.Book {
	return topRated(slices.Collect(maps.Values(c.books)), n)
}

func topRated(books []common.Book, n int) []common.Book {
	slices.SortFunc(books, func(a, b common.Book) int {
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if n >= 0 && len(books) > n {
		books = books[:n]
	}
	return books
}

// Verify checks availability + holders == copies for every book, that every
// loan is recorded on both sides, and that each index mirrors the store.
func (c *Catalog) Verify() error {
	for id, b := range c.books {
		held := len(c.holders[id])
		if b.Available < 0 || b.Available+held != b.Copies {
			return fmt.Errorf("%w: book %q available=%d held=%d copies=%d",
				ErrInvariant, id, b.Available, held, b.Copies)
		}
	}
	for uid, m := range c.users {
		for bid := range m.borrowed {
			if _, ok := c.holders[bid][uid]; !ok {
				return fmt.Errorf("%w: loan %q -> %q missing from holders", ErrInvariant, uid, bid)
			}
		}
	}
	for _, f := range c.fields {
		idx := c.indexes[f]
		if idx.Len() != len(c.books) {
			return fmt.Errorf("%w: %s index on %s has %d entries, store has %d",
				ErrInvariant, idx.Kind(), f, idx.Len(), len(c.books))
		}
		for id, b := range c.books {
			if !slices.Contains(idx.Lookup(f.Of(b)), id) {
				return fmt.Errorf("%w: %s index on %s lacks book %q", ErrInvariant, idx.Kind(), f, id)
			}
		}
	}
	return nil
}

func (c *Catalog) Stats() monitor.Snapshot {
	return c.stats.Snapshot()
}

func (c *Catalog) ResetStats() {
	c.stats.Reset()
}

// Populate adds books, then users, then replays each user's outstanding loans.
// Loans naming unknown or unavailable books are skipped and counted. A loan
// already present in the loaded history is not appended to it again.
func Populate(c *Catalog, books []common.Book, users []common.User) (int, error) {
	for _, b := range books {
		if err := c.AddBook(b); err != nil {
			return 0, err
		}
	}
	for _, u := range users {
		if err := c.AddUser(u); err != nil {
			return 0, err
		}
	}

	skipped := 0
	for _, u := range users {
		for _, bookID := range u.Borrowed {
			err := c.checkout(u.ID, bookID, !slices.Contains(u.History, bookID))
			switch {
			case err == nil:
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnavailable):
				skipped++
			default:
				return skipped, err
			}
		}
	}
	return skipped, nil
}
