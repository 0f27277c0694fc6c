package core

import (
	"errors"
	"fmt"
)

// ErrDuplicateID is returned when a book or user ID is already registered.
var ErrDuplicateID = errors.New("duplicate id")

// ErrNotFound is returned when a book or user does not exist.
var ErrNotFound = errors.New("not found")

// ErrCheckedOut is returned when removing a book some user still holds.
// It matches ErrNotFound: the book is not available for removal.
var ErrCheckedOut = fmt.Errorf("book is checked out: %w", ErrNotFound)

// ErrUnsupportedField is returned when no index is configured for a search field.
var ErrUnsupportedField = errors.New("unsupported search field")

// ErrUnavailable is returned when a book has no copies left.
var ErrUnavailable = errors.New("no copies available")

// ErrAlreadyBorrowed is returned when a user tries to borrow a book they already hold.
var ErrAlreadyBorrowed = fmt.Errorf("book already borrowed by user: %w", ErrUnavailable)

// ErrNotBorrowed is returned when a user returns a book they do not hold.
var ErrNotBorrowed = errors.New("book not borrowed by user")

// ErrInvalidRecord is returned for records the catalog cannot hold.
var ErrInvalidRecord = errors.New("invalid record")

// ErrInvariant is returned by Verify when store, indexes and loans disagree.
var ErrInvariant = errors.New("catalog invariant violated")
