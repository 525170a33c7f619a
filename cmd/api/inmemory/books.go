package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/library-service/cmd/api/library"
)

type AdaptedBook struct {
	ID                string
	Title             string
	Author            string
	ISBN              string
	ShelfLocation     string
	TotalQuantity     int
	AvailableQuantity int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func adaptBookIdToString(b library.Book) AdaptedBook {
	return AdaptedBook{
		ID:                b.ID.String(),
		Title:             b.Title,
		Author:            b.Author,
		ISBN:              b.ISBN,
		ShelfLocation:     b.ShelfLocation,
		TotalQuantity:     b.TotalQuantity,
		AvailableQuantity: b.AvailableQuantity,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func adaptBookIdToUUID(b AdaptedBook) library.Book {
	return library.Book{
		ID:                uuid.MustParse(b.ID),
		Title:             b.Title,
		Author:            b.Author,
		ISBN:              b.ISBN,
		ShelfLocation:     b.ShelfLocation,
		TotalQuantity:     b.TotalQuantity,
		AvailableQuantity: b.AvailableQuantity,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func getBook(txn *memdb.Txn, id uuid.UUID) (AdaptedBook, error) {
	raw, err := txn.First("book", "id", id.String())
	if err != nil {
		return AdaptedBook{}, err
	}
	if raw == nil {
		return AdaptedBook{}, library.ErrResponseBookNotFound
	}
	return raw.(AdaptedBook), nil
}

/* memdb does not enforce unique secondary indexes, so isbn is checked here. */
func isbnTaken(txn *memdb.Txn, isbn, ownerID string) (bool, error) {
	raw, err := txn.First("book", "isbn", isbn)
	if err != nil {
		return false, err
	}
	return raw != nil && raw.(AdaptedBook).ID != ownerID, nil
}

func (store *InMemoryStore) CreateBook(ctx context.Context, bookEntry library.Book) (library.Book, error) {
	err := store.write(func(txn *memdb.Txn) error {
		taken, err := isbnTaken(txn, bookEntry.ISBN, bookEntry.ID.String())
		if err != nil {
			return err
		}
		if taken {
			return library.ErrResponseISBNAlreadyExists
		}
		return txn.Insert("book", adaptBookIdToString(bookEntry))
	})
	if err != nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", err)
	}
	return bookEntry, nil
}

func (store *InMemoryStore) GetBookByID(ctx context.Context, id uuid.UUID) (library.Book, error) {
	txn, done := store.read()
	defer done()

	b, err := getBook(txn, id)
	if err != nil {
		return library.Book{}, fmt.Errorf("searching by ID: %w", err)
	}
	return adaptBookIdToUUID(b), nil
}

// The memdb writer lock already isolates the transaction, so locking is a plain read.
func (store *InMemoryStore) LockBook(ctx context.Context, id uuid.UUID) (library.Book, error) {
	return store.GetBookByID(ctx, id)
}

func matchesBook(b AdaptedBook, filter library.BookFilter) bool {
	if filter.Title != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(filter.Title)) {
		return false
	}
	if filter.Author != "" && !strings.Contains(strings.ToLower(b.Author), strings.ToLower(filter.Author)) {
		return false
	}
	if filter.ISBN != "" && b.ISBN != filter.ISBN {
		return false
	}
	return true
}

func (store *InMemoryStore) filterBooks(filter library.BookFilter) ([]library.Book, error) {
	txn, done := store.read()
	defer done()

	it, err := txn.Get("book", "id")
	if err != nil {
		return nil, err
	}

	books := []library.Book{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		b := obj.(AdaptedBook)
		if matchesBook(b, filter) {
			books = append(books, adaptBookIdToUUID(b))
		}
	}
	return books, nil
}

func (store *InMemoryStore) ListBooks(ctx context.Context, req library.ListBooksRequest) ([]library.Book, error) {
	books, err := store.filterBooks(req.Filter)
	if err != nil {
		return []library.Book{}, fmt.Errorf("listing books from db: %w", err)
	}

	sortBooks(req.SortBy, req.SortDirection, books)
	return paginate(books, req.Page, req.PageSize), nil
}

func sortBooks(sortBy, sortDirection string, books []library.Book) {
	less := func(i, j int) bool {
		switch sortBy {
		case "title":
			return books[i].Title < books[j].Title
		case "author":
			return books[i].Author < books[j].Author
		case "available_quantity":
			return books[i].AvailableQuantity < books[j].AvailableQuantity
		default:
			return books[i].CreatedAt.Before(books[j].CreatedAt)
		}
	}
	sort.SliceStable(books, func(i, j int) bool {
		if sortDirection == "desc" {
			return less(j, i)
		}
		return less(i, j)
	})
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 || pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (store *InMemoryStore) CountBooks(ctx context.Context, filter library.BookFilter) (int, error) {
	books, err := store.filterBooks(filter)
	if err != nil {
		return 0, fmt.Errorf("counting books from db: %w", err)
	}
	return len(books), nil
}

func (store *InMemoryStore) UpdateBook(ctx context.Context, bookEntry library.Book) (library.Book, error) {
	var updated AdaptedBook
	err := store.write(func(txn *memdb.Txn) error {
		stored, err := getBook(txn, bookEntry.ID)
		if err != nil {
			return err
		}
		taken, err := isbnTaken(txn, bookEntry.ISBN, stored.ID)
		if err != nil {
			return err
		}
		if taken {
			return library.ErrResponseISBNAlreadyExists
		}

		updated = adaptBookIdToString(bookEntry)
		updated.CreatedAt = stored.CreatedAt
		return txn.Insert("book", updated)
	})
	if err != nil {
		return library.Book{}, fmt.Errorf("updating book on db: %w", err)
	}
	return adaptBookIdToUUID(updated), nil
}

/* Deletes the book together with its borrowings. */
func (store *InMemoryStore) DeleteBook(ctx context.Context, id uuid.UUID) error {
	err := store.write(func(txn *memdb.Txn) error {
		stored, err := getBook(txn, id)
		if err != nil {
			return err
		}
		if _, err := txn.DeleteAll("borrowing", "book_id", stored.ID); err != nil {
			return err
		}
		return txn.Delete("book", stored)
	})
	if err != nil {
		return fmt.Errorf("deleting book on db: %w", err)
	}
	return nil
}

func (store *InMemoryStore) FindAvailableBooks(ctx context.Context, ids []uuid.UUID) ([]library.Book, error) {
	txn, done := store.read()
	defer done()

	books := []library.Book{}
	for _, id := range ids {
		raw, err := txn.First("book", "id", id.String())
		if err != nil {
			return nil, fmt.Errorf("searching available books: %w", err)
		}
		if raw == nil {
			continue
		}
		if b := raw.(AdaptedBook); b.AvailableQuantity > 0 {
			books = append(books, adaptBookIdToUUID(b))
		}
	}
	return books, nil
}

func (store *InMemoryStore) AdjustAvailability(ctx context.Context, ids []uuid.UUID, delta int) (int, error) {
	affected := 0
	err := store.write(func(txn *memdb.Txn) error {
		for _, id := range ids {
			raw, err := txn.First("book", "id", id.String())
			if err != nil {
				return err
			}
			if raw == nil {
				continue
			}

			b := raw.(AdaptedBook)
			next := b.AvailableQuantity + delta
			if next < 0 || next > b.TotalQuantity {
				continue
			}
			b.AvailableQuantity = next
			b.UpdatedAt = now()
			if err := txn.Insert("book", b); err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("adjusting availability on db: %w", err)
	}
	return affected, nil
}
