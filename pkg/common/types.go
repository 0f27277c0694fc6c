package common

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Book is one catalog record. Available counts the copies not on loan.
type Book struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Genre     string  `json:"genre"`
	Year      int     `json:"year"`
	Rating    float64 `json:"rating"`
	Copies    int     `json:"copies"`
	Available int     `json:"available"`
}

// String 方便调试打印
func (b Book) String() string {
	return fmt.Sprintf("Book{ID: %s, Title: %q, Author: %q, Avail: %d/%d}", b.ID, b.Title, b.Author, b.Available, b.Copies)
}

// User is a borrower. Borrowed is sorted by book ID.
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Borrowed []string `json:"borrowed_books"`
	History  []string `json:"history"`
}

// Clone returns a copy that shares no slices with u.
func (u User) Clone() User {
	u.Borrowed = slices.Clone(u.Borrowed)
	u.History = slices.Clone(u.History)
	return u
}

func (u User) String() string {
	return fmt.Sprintf("User{ID: %s, Name: %q, Borrowed: %d}", u.ID, u.Name, len(u.Borrowed))
}

// Field names a searchable book attribute.
type Field string

const (
	FieldID     Field = "id"
	FieldTitle  Field = "title"
	FieldAuthor Field = "author"
	FieldGenre  Field = "genre"
)

var ErrUnknownField = errors.New("unknown field")

// Fields lists every searchable field.
func Fields() []Field {
	return []Field{FieldID, FieldTitle, FieldAuthor, FieldGenre}
}

func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Fields(), f) {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
	return f, nil
}

// Of derives the index key of b for this field.
func (f Field) Of(b Book) string {
	switch f {
	case FieldID:
		return b.ID
	case FieldTitle:
		return b.Title
	case FieldAuthor:
		return b.Author
	case FieldGenre:
		return b.Genre
	}
	return ""
}

// Entry is one index item mapping a key to a record ID.
type Entry struct {
	Key string
	ID  string
}

// Compare orders entries by Key, then by ID, giving a strict total order.
func (e Entry) Compare(other Entry) int {
	if c := strings.Compare(e.Key, other.Key); c != 0 {
		return c
	}
	return strings.Compare(e.ID, other.ID)
}

func (e Entry) Less(other Entry) bool {
	return e.Compare(other) < 0
}

// IDs extracts the record IDs of entries, keeping their order.
func IDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
