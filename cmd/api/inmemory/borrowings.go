package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/library-service/cmd/api/library"
)

type AdaptedBorrowing struct {
	ID         string
	UserID     string
	BookID     string
	DueDate    time.Time
	IsReturned bool
	ReturnDate *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func adaptBorrowingIdToString(b library.Borrowing) AdaptedBorrowing {
	return AdaptedBorrowing{
		ID:         b.ID.String(),
		UserID:     b.UserID.String(),
		BookID:     b.BookID.String(),
		DueDate:    b.DueDate,
		IsReturned: b.IsReturned,
		ReturnDate: b.ReturnDate,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func adaptBorrowingIdToUUID(b AdaptedBorrowing) library.Borrowing {
	return library.Borrowing{
		ID:         uuid.MustParse(b.ID),
		UserID:     uuid.MustParse(b.UserID),
		BookID:     uuid.MustParse(b.BookID),
		DueDate:    b.DueDate,
		IsReturned: b.IsReturned,
		ReturnDate: b.ReturnDate,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func (store *InMemoryStore) InsertBorrowings(ctx context.Context, borrowings []library.Borrowing) ([]library.Borrowing, error) {
	err := store.write(func(txn *memdb.Txn) error {
		for _, b := range borrowings {
			if _, err := getUser(txn, b.UserID); err != nil {
				return err
			}
			if _, err := getBook(txn, b.BookID); err != nil {
				return err
			}
			if err := txn.Insert("borrowing", adaptBorrowingIdToString(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing borrowings on db: %w", err)
	}

	created := make([]library.Borrowing, len(borrowings))
	copy(created, borrowings)
	return created, nil
}

func openFor(txn *memdb.Txn, userID uuid.UUID, bookIDs []uuid.UUID) ([]AdaptedBorrowing, error) {
	wanted := make(map[string]struct{}, len(bookIDs))
	for _, id := range bookIDs {
		wanted[id.String()] = struct{}{}
	}

	it, err := txn.Get("borrowing", "user_id", userID.String())
	if err != nil {
		return nil, err
	}

	open := []AdaptedBorrowing{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		b := obj.(AdaptedBorrowing)
		if b.IsReturned {
			continue
		}
		if _, ok := wanted[b.BookID]; ok {
			open = append(open, b)
		}
	}
	return open, nil
}

func (store *InMemoryStore) FindOpenBorrowings(ctx context.Context, userID uuid.UUID, bookIDs []uuid.UUID) ([]library.Borrowing, error) {
	txn, done := store.read()
	defer done()

	open, err := openFor(txn, userID, bookIDs)
	if err != nil {
		return nil, fmt.Errorf("searching open borrowings: %w", err)
	}

	borrowings := make([]library.Borrowing, 0, len(open))
	for _, b := range open {
		borrowings = append(borrowings, adaptBorrowingIdToUUID(b))
	}
	return borrowings, nil
}

func (store *InMemoryStore) MarkReturned(ctx context.Context, userID uuid.UUID, bookIDs []uuid.UUID, returnedAt time.Time) ([]library.Borrowing, error) {
	returned := []library.Borrowing{}
	err := store.write(func(txn *memdb.Txn) error {
		// collected first: the radix tree must not change under a live iterator
		open, err := openFor(txn, userID, bookIDs)
		if err != nil {
			return err
		}

		for _, b := range open {
			at := returnedAt
			b.IsReturned = true
			b.ReturnDate = &at
			b.UpdatedAt = returnedAt
			if err := txn.Insert("borrowing", b); err != nil {
				return err
			}
			returned = append(returned, adaptBorrowingIdToUUID(b))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("marking borrowings returned on db: %w", err)
	}
	return returned, nil
}

func (store *InMemoryStore) ListBorrowings(ctx context.Context, filter library.BorrowingFilter) ([]library.Borrowing, error) {
	txn, done := store.read()
	defer done()

	var it memdb.ResultIterator
	var err error
	switch {
	case filter.UserID != nil:
		it, err = txn.Get("borrowing", "user_id", filter.UserID.String())
	case filter.BookID != nil:
		it, err = txn.Get("borrowing", "book_id", filter.BookID.String())
	default:
		it, err = txn.Get("borrowing", "id")
	}
	if err != nil {
		return nil, fmt.Errorf("listing borrowings from db: %w", err)
	}

	borrowings := []library.Borrowing{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		b := obj.(AdaptedBorrowing)
		if filter.BookID != nil && b.BookID != filter.BookID.String() {
			continue
		}
		if filter.OnlyOpen && b.IsReturned {
			continue
		}
		if filter.CreatedFrom != nil && b.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && b.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		borrowings = append(borrowings, adaptBorrowingIdToUUID(b))
	}

	sort.SliceStable(borrowings, func(i, j int) bool {
		return borrowings[i].CreatedAt.Before(borrowings[j].CreatedAt)
	})
	return borrowings, nil
}
