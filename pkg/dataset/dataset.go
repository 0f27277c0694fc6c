// Package dataset reads the newline-delimited book and user files produced by
// the data preparation step and draws reproducible samples from them.
package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	jsoniter "github.com/json-iterator/go"

	"libris/pkg/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxLineSize = 4 << 20

// Dataset is a validated, in-memory copy of the input files. It is read-only once loaded.
type Dataset struct {
	Books []common.Book
	Users []common.User
}

type bookRecord struct {
	ID     *string  `json:"id"`
	Title  *string  `json:"title"`
	Author *string  `json:"author"`
	Genre  string   `json:"genre"`
	Year   int      `json:"year"`
	Rating *float64 `json:"rating"`
	Copies *int     `json:"copies"`
}

type userRecord struct {
	ID       *string  `json:"id"`
	Name     *string  `json:"name"`
	Borrowed []string `json:"borrowed_books"`
	History  []string `json:"history"`
}

// Load reads both files. An empty usersPath yields a dataset without users.
func Load(booksPath, usersPath string) (*Dataset, error) {
	books, err := LoadBooks(booksPath)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Books: books}
	if usersPath == "" {
		return ds, nil
	}
	if ds.Users, err = LoadUsers(usersPath); err != nil {
		return nil, err
	}
	return ds, nil
}

func LoadBooks(path string) ([]common.Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open books file: %w", err)
	}
	defer f.Close()
	return ReadBooks(f, path)
}

func LoadUsers(path string) ([]common.User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()
	return ReadUsers(f, path)
}

// ReadBooks decodes one book per line. name is used in error messages.
func ReadBooks(r io.Reader, name string) ([]common.Book, error) {
	var books []common.Book
	seen := make(map[string]struct{})
	err := eachLine(r, name, func(data []byte) error {
		var rec bookRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		switch {
		case rec.ID == nil || *rec.ID == "":
			return errors.New("missing id")
		case rec.Title == nil:
			return errors.New("missing title")
		case rec.Author == nil:
			return errors.New("missing author")
		}
		if _, dup := seen[*rec.ID]; dup {
			return fmt.Errorf("duplicate id %q", *rec.ID)
		}
		seen[*rec.ID] = struct{}{}

		b := common.Book{
			ID:     *rec.ID,
			Title:  *rec.Title,
			Author: *rec.Author,
			Genre:  rec.Genre,
			Year:   rec.Year,
			Copies: 1,
		}
		if rec.Rating != nil {
			b.Rating = *rec.Rating
		}
		if rec.Copies != nil {
			if *rec.Copies < 0 {
				return fmt.Errorf("negative copies %d", *rec.Copies)
			}
			b.Copies = *rec.Copies
		}
		b.Available = b.Copies
		books = append(books, b)
		return nil
	})
	return books, err
}

// ReadUsers decodes one user per line.
func ReadUsers(r io.Reader, name string) ([]common.User, error) {
	var users []common.User
	seen := make(map[string]struct{})
	err := eachLine(r, name, func(data []byte) error {
		var rec userRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		switch {
		case rec.ID == nil || *rec.ID == "":
			return errors.New("missing id")
		case rec.Name == nil:
			return errors.New("missing name")
		}
		if _, dup := seen[*rec.ID]; dup {
			return fmt.Errorf("duplicate id %q", *rec.ID)
		}
		seen[*rec.ID] = struct{}{}

		users = append(users, common.User{
			ID:       *rec.ID,
			Name:     *rec.Name,
			Borrowed: rec.Borrowed,
			History:  rec.History,
		})
		return nil
	})
	return users, err
}

func eachLine(r io.Reader, name string, fn func(data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := fn(data); err != nil {
			return &MalformedRecordError{Path: name, Line: line, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return &MalformedRecordError{Path: name, Line: line + 1, Err: err}
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

// Sample draws a dataset of n books. Users are taken in random order together
// with every book they borrowed or read, as long as the total stays within n;
// the remainder is filled with random books. The same (n, seed) gives the same sample.
func (d *Dataset) Sample(n int, seed uint64) *Dataset {
	if n >= len(d.Books) {
		return &Dataset{Books: d.Books, Users: d.Users}
	}
	if n <= 0 {
		return &Dataset{}
	}

	r := rand.New(rand.NewPCG(seed, uint64(n)))
	byID := make(map[string]int, len(d.Books))
	for i, b := range d.Books {
		byID[b.ID] = i
	}

	selected := make(map[int]struct{}, n)
	out := &Dataset{Books: make([]common.Book, 0, n)}

	for _, ui := range r.Perm(len(d.Users)) {
		u := d.Users[ui]
		var need []int
		pending := make(map[int]struct{})
		for _, ids := range [][]string{u.Borrowed, u.History} {
			for _, id := range ids {
				i, ok := byID[id]
				if !ok {
					continue
				}
				if _, done := selected[i]; done {
					continue
				}
				if _, dup := pending[i]; dup {
					continue
				}
				pending[i] = struct{}{}
				need = append(need, i)
			}
		}
		if len(out.Books)+len(need) > n {
			break
		}
		for _, i := range need {
			selected[i] = struct{}{}
			out.Books = append(out.Books, d.Books[i])
		}
		out.Users = append(out.Users, u)
	}

	if len(out.Books) < n {
		for _, i := range r.Perm(len(d.Books)) {
			if len(out.Books) == n {
				break
			}
			if _, done := selected[i]; done {
				continue
			}
			selected[i] = struct{}{}
			out.Books = append(out.Books, d.Books[i])
		}
	}
	return out
}

// Sizes returns levels exponentially spaced dataset sizes ending at max:
// max/2^(levels-1), ..., max/2, max. Zero sizes are dropped.
func Sizes(max, levels int) []int {
	if max <= 0 {
		return nil
	}
	if levels < 1 {
		levels = 1
	}
	var sizes []int
	for i := levels; i >= 1; i-- {
		if size := max >> (i - 1); size > 0 {
			sizes = append(sizes, size)
		}
	}
	return sizes
}
