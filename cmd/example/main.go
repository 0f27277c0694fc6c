package main

import (
	"fmt"
	"log"
	"time"

	"libris/pkg/common"
	"libris/pkg/core"
	"libris/pkg/core/index"
)

func main() {
	fmt.Println("Building catalog (btree indexes on id, title, author, genre)...")
	c, err := core.New(index.KindBTree, core.WithFields(common.Fields()...))
	if err != nil {
		log.Fatalf("Failed to create catalog: %v", err)
	}

	books := []common.Book{
		{ID: "b1", Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction", Year: 1965, Rating: 4.25, Copies: 1},
		{ID: "b2", Title: "Foundation", Author: "Isaac Asimov", Genre: "Science Fiction", Year: 1951, Rating: 4.17, Copies: 2},
		{ID: "b3", Title: "The Dispossessed", Author: "Ursula K. Le Guin", Genre: "Science Fiction", Year: 1974, Rating: 4.22, Copies: 1},
		{ID: "b4", Title: "Emma", Author: "Jane Austen", Genre: "Classics", Year: 1815, Rating: 4.01, Copies: 1},
	}
	users := []common.User{
		{ID: "u1", Name: "Ada"},
		{ID: "u2", Name: "Grace"},
	}
	if _, err := core.Populate(c, books, users); err != nil {
		log.Fatalf("Populate failed: %v", err)
	}

	start := time.Now()
	found, err := c.Search(common.FieldTitle, "Dune")
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	fmt.Printf("Search title=Dune: %v (in %v)\n", found, time.Since(start))

	if err := c.Checkout("u1", "b1"); err != nil {
		log.Fatalf("Checkout failed: %v", err)
	}
	b, _ := c.Book("b1")
	fmt.Printf("u1 borrowed Dune: %v\n", b)

	if err := c.Checkout("u2", "b1"); err != nil {
		fmt.Printf("u2 cannot borrow Dune: %v\n", err)
	}

	if err := c.ReturnBook("u1", "b1"); err != nil {
		log.Fatalf("Return failed: %v", err)
	}
	if err := c.Checkout("u2", "b1"); err != nil {
		log.Fatalf("Checkout failed: %v", err)
	}
	u, _ := c.User("u2")
	fmt.Printf("After return, u2 holds %v\n", u.Borrowed)

	recs, err := c.Recommend("b1", 2)
	if err != nil {
		log.Fatalf("Recommend failed: %v", err)
	}
	fmt.Println("Readers of Dune may also like:")
	for _, r := range recs {
		fmt.Printf("  %s by %s (%.2f)\n", r.Title, r.Author, r.Rating)
	}

	if err := c.Verify(); err != nil {
		log.Fatalf("Verify failed: %v", err)
	}
	fmt.Printf("Catalog consistent: %d books, %d users, stats %+v\n", c.Len(), c.UserCount(), c.Stats())
}
