package inmemory_test

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/inmemory"
	"github.com/library-service/cmd/api/library"
	"github.com/matryer/is"
)

var ctx context.Context = context.Background()

func newStore() *inmemory.InMemoryStore {
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		log.Fatalln(err)
	}
	return store
}

func newBook(isbn string, total int) library.Book {
	createdAt := time.Now().UTC().Round(time.Millisecond)
	return library.Book{
		ID:                uuid.New(),
		Title:             "Book " + isbn,
		Author:            "Some Author",
		ISBN:              isbn,
		ShelfLocation:     "A-1",
		TotalQuantity:     total,
		AvailableQuantity: total,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
}

func newUser(email string) library.User {
	createdAt := time.Now().UTC().Round(time.Millisecond)
	return library.User{
		ID:        uuid.New(),
		Name:      "Reader",
		Email:     email,
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func compareBooks(is *is.I, got, want library.Book) {
	is.Helper()
	is.Equal(got.ID, want.ID)
	is.Equal(got.Title, want.Title)
	is.Equal(got.Author, want.Author)
	is.Equal(got.ISBN, want.ISBN)
	is.Equal(got.ShelfLocation, want.ShelfLocation)
	is.Equal(got.TotalQuantity, want.TotalQuantity)
	is.Equal(got.AvailableQuantity, want.AvailableQuantity)
	is.True(got.CreatedAt.Equal(want.CreatedAt))
}

func TestCreateBook(t *testing.T) {
	store := newStore()

	t.Run("creates a book without errors", func(t *testing.T) {
		is := is.New(t)

		b := newBook("978-0000000001", 3)
		created, err := store.CreateBook(ctx, b)
		is.NoErr(err)
		compareBooks(is, created, b)

		fetched, err := store.GetBookByID(ctx, b.ID)
		is.NoErr(err)
		compareBooks(is, fetched, b)
	})

	t.Run("a repeated isbn is refused", func(t *testing.T) {
		is := is.New(t)

		_, err := store.CreateBook(ctx, newBook("978-0000000002", 1))
		is.NoErr(err)

		_, err = store.CreateBook(ctx, newBook("978-0000000002", 1))
		is.True(errors.Is(err, library.ErrResponseISBNAlreadyExists))
	})
}

func TestGetBookByID(t *testing.T) {
	store := newStore()

	t.Run("searching an unknown ID returns not found", func(t *testing.T) {
		is := is.New(t)

		_, err := store.GetBookByID(ctx, uuid.New())
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})
}

func TestListBooks(t *testing.T) {
	store := newStore()
	is := is.New(t)

	titles := []string{"Dune", "Emma", "Beloved", "Ulysses", "Dracula"}
	for i, title := range titles {
		b := newBook(title, i+1)
		b.Title = title
		b.CreatedAt = b.CreatedAt.Add(time.Duration(i) * time.Second)
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)
	}

	t.Run("filters by partial title ignoring case", func(t *testing.T) {
		is := is.New(t)

		filter := library.BookFilter{Title: "d"}
		total, err := store.CountBooks(ctx, filter)
		is.NoErr(err)
		is.Equal(total, 3) // Dune, Beloved, Dracula

		books, err := store.ListBooks(ctx, library.ListBooksRequest{Filter: filter, SortBy: "title", SortDirection: "asc", Page: 1, PageSize: 10})
		is.NoErr(err)
		is.Equal(len(books), 3)
		is.Equal(books[0].Title, "Beloved")
		is.Equal(books[1].Title, "Dracula")
		is.Equal(books[2].Title, "Dune")
	})

	t.Run("sorts descending and paginates", func(t *testing.T) {
		is := is.New(t)

		req := library.ListBooksRequest{SortBy: "available_quantity", SortDirection: "desc", Page: 2, PageSize: 2}
		books, err := store.ListBooks(ctx, req)
		is.NoErr(err)
		is.Equal(len(books), 2)
		is.Equal(books[0].AvailableQuantity, 3)
		is.Equal(books[1].AvailableQuantity, 2)

		req.Page = 4
		books, err = store.ListBooks(ctx, req)
		is.NoErr(err)
		is.Equal(len(books), 0)
	})
}

func TestUpdateAndDeleteBook(t *testing.T) {
	store := newStore()

	t.Run("updates the book keeping its creation time", func(t *testing.T) {
		is := is.New(t)

		b := newBook("978-0000000010", 2)
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)

		b.Title = "A new title"
		b.TotalQuantity = 5
		b.CreatedAt = time.Time{}
		updated, err := store.UpdateBook(ctx, b)
		is.NoErr(err)
		is.Equal(updated.Title, "A new title")
		is.Equal(updated.TotalQuantity, 5)
		is.True(!updated.CreatedAt.IsZero())
	})

	t.Run("deleting removes the book and its borrowings", func(t *testing.T) {
		is := is.New(t)

		b := newBook("978-0000000011", 2)
		u := newUser("delete.book@library.test")
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)
		_, err = store.CreateUser(ctx, u)
		is.NoErr(err)
		_, err = store.InsertBorrowings(ctx, []library.Borrowing{{ID: uuid.New(), UserID: u.ID, BookID: b.ID, DueDate: time.Now().Add(time.Hour)}})
		is.NoErr(err)

		is.NoErr(store.DeleteBook(ctx, b.ID))

		_, err = store.GetBookByID(ctx, b.ID)
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
		left, err := store.ListBorrowings(ctx, library.BorrowingFilter{UserID: &u.ID})
		is.NoErr(err)
		is.Equal(len(left), 0)

		err = store.DeleteBook(ctx, b.ID)
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})
}

func TestAdjustAvailability(t *testing.T) {
	store := newStore()
	is := is.New(t)

	full := newBook("978-0000000020", 1)
	empty := newBook("978-0000000021", 1)
	empty.AvailableQuantity = 0
	for _, b := range []library.Book{full, empty} {
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)
	}

	t.Run("never goes below zero", func(t *testing.T) {
		is := is.New(t)

		affected, err := store.AdjustAvailability(ctx, []uuid.UUID{full.ID, empty.ID}, -1)
		is.NoErr(err)
		is.Equal(affected, 1)

		got, err := store.GetBookByID(ctx, empty.ID)
		is.NoErr(err)
		is.Equal(got.AvailableQuantity, 0)
	})

	t.Run("never goes above the total", func(t *testing.T) {
		is := is.New(t)

		affected, err := store.AdjustAvailability(ctx, []uuid.UUID{full.ID, empty.ID}, 1)
		is.NoErr(err)
		is.Equal(affected, 2)

		affected, err = store.AdjustAvailability(ctx, []uuid.UUID{full.ID}, 1)
		is.NoErr(err)
		is.Equal(affected, 0)

		got, err := store.GetBookByID(ctx, full.ID)
		is.NoErr(err)
		is.Equal(got.AvailableQuantity, 1)
	})

	t.Run("only lists books with copies left", func(t *testing.T) {
		is := is.New(t)

		_, err := store.AdjustAvailability(ctx, []uuid.UUID{empty.ID}, -1)
		is.NoErr(err)

		available, err := store.FindAvailableBooks(ctx, []uuid.UUID{full.ID, empty.ID, uuid.New()})
		is.NoErr(err)
		is.Equal(len(available), 1)
		is.Equal(available[0].ID, full.ID)
	})
}

func TestUsers(t *testing.T) {
	store := newStore()

	t.Run("a repeated email is refused", func(t *testing.T) {
		is := is.New(t)

		_, err := store.CreateUser(ctx, newUser("twice@library.test"))
		is.NoErr(err)
		_, err = store.CreateUser(ctx, newUser("twice@library.test"))
		is.True(errors.Is(err, library.ErrResponseEmailAlreadyExists))
	})

	t.Run("finds a user by email and stores the refresh hash", func(t *testing.T) {
		is := is.New(t)

		u := newUser("find.me@library.test")
		_, err := store.CreateUser(ctx, u)
		is.NoErr(err)

		hash := "some-hash"
		is.NoErr(store.SetRefreshTokenHash(ctx, u.ID, &hash))

		got, err := store.GetUserByEmail(ctx, u.Email)
		is.NoErr(err)
		is.Equal(got.ID, u.ID)
		is.Equal(*got.RefreshTokenHash, hash)

		is.NoErr(store.SetRefreshTokenHash(ctx, u.ID, nil))
		got, err = store.GetUserByID(ctx, u.ID)
		is.NoErr(err)
		is.True(got.RefreshTokenHash == nil)
	})

	t.Run("updating an email to one in use is refused", func(t *testing.T) {
		is := is.New(t)

		u := newUser("first@library.test")
		_, err := store.CreateUser(ctx, u)
		is.NoErr(err)
		_, err = store.CreateUser(ctx, newUser("second@library.test"))
		is.NoErr(err)

		u.Email = "second@library.test"
		_, err = store.UpdateUser(ctx, u)
		is.True(errors.Is(err, library.ErrResponseEmailAlreadyExists))
	})

	t.Run("counts and pages users", func(t *testing.T) {
		is := is.New(t)

		total, err := store.CountUsers(ctx)
		is.NoErr(err)
		is.Equal(total, 4)

		users, err := store.ListUsers(ctx, 2, 3)
		is.NoErr(err)
		is.Equal(len(users), 1)
	})

	t.Run("unknown users are not found", func(t *testing.T) {
		is := is.New(t)

		_, err := store.GetUserByEmail(ctx, "nobody@library.test")
		is.True(errors.Is(err, library.ErrResponseUserNotFound))
		err = store.DeleteUser(ctx, uuid.New())
		is.True(errors.Is(err, library.ErrResponseUserNotFound))
	})
}

func TestBorrowingLedger(t *testing.T) {
	store := newStore()
	is := is.New(t)

	u := newUser("ledger@library.test")
	a := newBook("978-0000000030", 1)
	b := newBook("978-0000000031", 1)
	_, err := store.CreateUser(ctx, u)
	is.NoErr(err)
	for _, bk := range []library.Book{a, b} {
		_, err := store.CreateBook(ctx, bk)
		is.NoErr(err)
	}

	createdAt := time.Now().UTC().Round(time.Millisecond)
	_, err = store.InsertBorrowings(ctx, []library.Borrowing{
		{ID: uuid.New(), UserID: u.ID, BookID: a.ID, DueDate: createdAt.Add(time.Hour), CreatedAt: createdAt, UpdatedAt: createdAt},
		{ID: uuid.New(), UserID: u.ID, BookID: b.ID, DueDate: createdAt.Add(time.Hour), CreatedAt: createdAt, UpdatedAt: createdAt},
	})
	is.NoErr(err)

	t.Run("finds open borrowings restricted to the requested books", func(t *testing.T) {
		is := is.New(t)

		open, err := store.FindOpenBorrowings(ctx, u.ID, []uuid.UUID{a.ID, uuid.New()})
		is.NoErr(err)
		is.Equal(len(open), 1)
		is.Equal(open[0].BookID, a.ID)
	})

	t.Run("marks only open borrowings of the user as returned", func(t *testing.T) {
		is := is.New(t)

		returnedAt := time.Now().UTC().Round(time.Millisecond)
		returned, err := store.MarkReturned(ctx, u.ID, []uuid.UUID{a.ID}, returnedAt)
		is.NoErr(err)
		is.Equal(len(returned), 1)
		is.True(returned[0].IsReturned)
		is.True(returned[0].ReturnDate.Equal(returnedAt))

		again, err := store.MarkReturned(ctx, u.ID, []uuid.UUID{a.ID}, returnedAt)
		is.NoErr(err)
		is.Equal(len(again), 0)

		other, err := store.MarkReturned(ctx, uuid.New(), []uuid.UUID{b.ID}, returnedAt)
		is.NoErr(err)
		is.Equal(len(other), 0)
	})

	t.Run("lists by book, status and creation window", func(t *testing.T) {
		is := is.New(t)

		open, err := store.ListBorrowings(ctx, library.BorrowingFilter{BookID: &b.ID, OnlyOpen: true})
		is.NoErr(err)
		is.Equal(len(open), 1)

		from := createdAt.Add(time.Minute)
		none, err := store.ListBorrowings(ctx, library.BorrowingFilter{CreatedFrom: &from})
		is.NoErr(err)
		is.Equal(len(none), 0)

		all, err := store.ListBorrowings(ctx, library.BorrowingFilter{CreatedTo: &createdAt})
		is.NoErr(err)
		is.Equal(len(all), 2)
	})

	t.Run("a borrowing for an unknown book is refused", func(t *testing.T) {
		is := is.New(t)

		_, err := store.InsertBorrowings(ctx, []library.Borrowing{{ID: uuid.New(), UserID: u.ID, BookID: uuid.New()}})
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})
}

func TestTransactions(t *testing.T) {
	store := newStore()

	t.Run("rolled back writes are not visible", func(t *testing.T) {
		is := is.New(t)

		txRepo, tx, err := store.BeginTx(ctx, nil)
		is.NoErr(err)

		b := newBook("978-0000000040", 1)
		_, err = txRepo.CreateBook(ctx, b)
		is.NoErr(err)

		_, err = txRepo.GetBookByID(ctx, b.ID)
		is.NoErr(err)

		is.NoErr(tx.Rollback())

		_, err = store.GetBookByID(ctx, b.ID)
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})

	t.Run("committed writes are visible", func(t *testing.T) {
		is := is.New(t)

		txRepo, tx, err := store.BeginTx(ctx, nil)
		is.NoErr(err)

		b := newBook("978-0000000041", 1)
		_, err = txRepo.CreateBook(ctx, b)
		is.NoErr(err)
		is.NoErr(tx.Commit())

		_, err = store.GetBookByID(ctx, b.ID)
		is.NoErr(err)

		is.True(errors.Is(tx.Rollback(), sql.ErrTxDone))
	})
}
