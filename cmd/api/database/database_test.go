package database_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/library-service/cmd/api/database"
	"github.com/library-service/cmd/api/library"
	"github.com/matryer/is"

	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var store *database.Store
var sqlDB *sqlx.DB
var ctx context.Context = context.Background()

// TestMain connects to DATABASE_URL and migrates it up before the tests run.
// Without DATABASE_URL the whole package is skipped.
func TestMain(m *testing.M) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Println("DATABASE_URL not set, skipping database tests")
		os.Exit(0)
	}
	driverName := os.Getenv("DATABASE_DRIVER")
	if driverName == "" {
		driverName = database.DriverPostgres
	}

	var err error
	sqlDB, err = database.ConnectDb(driverName, connStr)
	if err != nil {
		log.Fatalln(err)
	}

	store = database.NewStore(sqlDB)
	path := os.Getenv("DATABASE_MIGRATIONS_PATH")
	err = database.MigrationUp(store, path)
	if err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalln(err)
		}
		log.Println(err)
	}

	os.Exit(m.Run())
}

func teardownDB(t *testing.T) {
	t.Helper()
	if _, err := sqlDB.Exec(`TRUNCATE TABLE borrowings, books, users`); err != nil {
		t.Fatalf("error truncating test database tables: %v", err)
	}
}

func createBook(is *is.I, isbn string, total int) library.Book {
	is.Helper()
	createdAt := time.Now().UTC().Round(time.Millisecond)
	b, err := store.CreateBook(ctx, library.Book{
		ID:                uuid.New(),
		Title:             "Book " + isbn,
		Author:            "Author " + isbn,
		ISBN:              isbn,
		ShelfLocation:     "B-2",
		TotalQuantity:     total,
		AvailableQuantity: total,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	})
	is.NoErr(err)
	return b
}

func createUser(is *is.I, email string) library.User {
	is.Helper()
	createdAt := time.Now().UTC().Round(time.Millisecond)
	u, err := store.CreateUser(ctx, library.User{
		ID:        uuid.New(),
		Name:      "Reader",
		Email:     email,
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	is.NoErr(err)
	return u
}

func TestBooks(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("creates and fetches a book", func(t *testing.T) {
		is := is.New(t)

		b := createBook(is, "978-1000000001", 4)
		got, err := store.GetBookByID(ctx, b.ID)
		is.NoErr(err)
		is.Equal(got.ISBN, b.ISBN)
		is.Equal(got.AvailableQuantity, 4)
		is.True(got.CreatedAt.Equal(b.CreatedAt))
	})

	t.Run("a repeated isbn surfaces as a duplicate", func(t *testing.T) {
		is := is.New(t)

		createBook(is, "978-1000000002", 1)
		_, err := store.CreateBook(ctx, library.Book{ID: uuid.New(), Title: "t", Author: "a", ISBN: "978-1000000002", ShelfLocation: "s", TotalQuantity: 1, AvailableQuantity: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()})
		is.True(errors.Is(err, library.ErrResponseISBNAlreadyExists))
	})

	t.Run("the schema refuses availability above the total", func(t *testing.T) {
		is := is.New(t)

		b := createBook(is, "978-1000000003", 1)
		b.AvailableQuantity = 2
		_, err := store.UpdateBook(ctx, b)
		is.True(errors.Is(err, library.ErrResponseAvailabilityExceedsTotal))
	})

	t.Run("unknown books are not found", func(t *testing.T) {
		is := is.New(t)

		_, err := store.GetBookByID(ctx, uuid.New())
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
		err = store.DeleteBook(ctx, uuid.New())
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})
}

func TestListBooks(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})
	is := is.New(t)

	for i := 0; i < 5; i++ {
		createBook(is, fmt.Sprintf("978-20000000%02d", i), i+1)
	}

	t.Run("filters, sorts and paginates", func(t *testing.T) {
		is := is.New(t)

		total, err := store.CountBooks(ctx, library.BookFilter{Title: "BOOK 978-2"})
		is.NoErr(err)
		is.Equal(total, 5)

		books, err := store.ListBooks(ctx, library.ListBooksRequest{SortBy: "available_quantity", SortDirection: "desc", Page: 1, PageSize: 2})
		is.NoErr(err)
		is.Equal(len(books), 2)
		is.Equal(books[0].AvailableQuantity, 5)
		is.Equal(books[1].AvailableQuantity, 4)

		books, err = store.ListBooks(ctx, library.ListBooksRequest{Filter: library.BookFilter{ISBN: "978-2000000003"}, Page: 1, PageSize: 10})
		is.NoErr(err)
		is.Equal(len(books), 1)
	})
}

func TestAdjustAvailability(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("keeps availability inside its bounds", func(t *testing.T) {
		is := is.New(t)

		one := createBook(is, "978-3000000001", 1)
		affected, err := store.AdjustAvailability(ctx, []uuid.UUID{one.ID}, -1)
		is.NoErr(err)
		is.Equal(affected, 1)

		affected, err = store.AdjustAvailability(ctx, []uuid.UUID{one.ID}, -1)
		is.NoErr(err)
		is.Equal(affected, 0)

		affected, err = store.AdjustAvailability(ctx, []uuid.UUID{one.ID}, 1)
		is.NoErr(err)
		is.Equal(affected, 1)

		affected, err = store.AdjustAvailability(ctx, []uuid.UUID{one.ID}, 1)
		is.NoErr(err)
		is.Equal(affected, 0)
	})
}

func TestUsers(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("a repeated email surfaces as a duplicate", func(t *testing.T) {
		is := is.New(t)

		createUser(is, "twice@library.test")
		_, err := store.CreateUser(ctx, library.User{ID: uuid.New(), Name: "n", Email: "twice@library.test", CreatedAt: time.Now(), UpdatedAt: time.Now()})
		is.True(errors.Is(err, library.ErrResponseEmailAlreadyExists))
	})

	t.Run("stores and clears the refresh hash", func(t *testing.T) {
		is := is.New(t)

		u := createUser(is, "tokens@library.test")
		hash := "hash"
		is.NoErr(store.SetRefreshTokenHash(ctx, u.ID, &hash))
		got, err := store.GetUserByEmail(ctx, u.Email)
		is.NoErr(err)
		is.Equal(*got.RefreshTokenHash, hash)

		is.NoErr(store.SetRefreshTokenHash(ctx, u.ID, nil))
		got, err = store.GetUserByID(ctx, u.ID)
		is.NoErr(err)
		is.True(got.RefreshTokenHash == nil)

		err = store.SetRefreshTokenHash(ctx, uuid.New(), nil)
		is.True(errors.Is(err, library.ErrResponseUserNotFound))
	})
}

func TestBorrowingLedger(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})
	is := is.New(t)

	u := createUser(is, "ledger@library.test")
	a := createBook(is, "978-4000000001", 1)
	b := createBook(is, "978-4000000002", 1)
	createdAt := time.Now().UTC().Round(time.Millisecond)

	inserted, err := store.InsertBorrowings(ctx, []library.Borrowing{
		{ID: uuid.New(), UserID: u.ID, BookID: a.ID, DueDate: createdAt.Add(time.Hour), CreatedAt: createdAt, UpdatedAt: createdAt},
		{ID: uuid.New(), UserID: u.ID, BookID: b.ID, DueDate: createdAt.Add(time.Hour), CreatedAt: createdAt, UpdatedAt: createdAt},
	})
	is.NoErr(err)
	is.Equal(len(inserted), 2)
	is.True(inserted[0].ReturnDate == nil)

	t.Run("finds and closes open borrowings", func(t *testing.T) {
		is := is.New(t)

		open, err := store.FindOpenBorrowings(ctx, u.ID, []uuid.UUID{a.ID})
		is.NoErr(err)
		is.Equal(len(open), 1)

		returnedAt := time.Now().UTC().Round(time.Millisecond)
		closed, err := store.MarkReturned(ctx, u.ID, []uuid.UUID{a.ID, b.ID}, returnedAt)
		is.NoErr(err)
		is.Equal(len(closed), 2)
		is.True(closed[0].IsReturned)
		is.True(closed[0].ReturnDate.Equal(returnedAt))

		again, err := store.MarkReturned(ctx, u.ID, []uuid.UUID{a.ID}, returnedAt)
		is.NoErr(err)
		is.Equal(len(again), 0)
	})

	t.Run("lists by creation window", func(t *testing.T) {
		is := is.New(t)

		from := createdAt.Add(-time.Minute)
		to := createdAt.Add(time.Minute)
		all, err := store.ListBorrowings(ctx, library.BorrowingFilter{CreatedFrom: &from, CreatedTo: &to})
		is.NoErr(err)
		is.Equal(len(all), 2)

		open, err := store.ListBorrowings(ctx, library.BorrowingFilter{UserID: &u.ID, OnlyOpen: true})
		is.NoErr(err)
		is.Equal(len(open), 0)
	})
}

func TestConcurrentBorrowOfLastCopy(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})
	is := is.New(t)

	svc := library.NewService(store)
	b := createBook(is, "978-5000000001", 1)

	const borrowers = 10
	users := make([]library.User, borrowers)
	for i := range users {
		users[i] = createUser(is, fmt.Sprintf("reader%02d@library.test", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, borrowers)
	for _, u := range users {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			_, err := svc.BorrowBooks(ctx, userID, []library.BorrowRequest{{BookID: b.ID, DueDate: time.Now().Add(24 * time.Hour)}})
			errs <- err
		}(u.ID)
	}
	wg.Wait()
	close(errs)

	succeeded, unavailable := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, library.ErrResponseBooksUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	is.Equal(succeeded, 1)
	is.Equal(unavailable, borrowers-1)

	got, err := store.GetBookByID(ctx, b.ID)
	is.NoErr(err)
	is.Equal(got.AvailableQuantity, 0)
}

func TestDownMigrations(t *testing.T) {
	is := is.New(t)
	driver, err := postgres.WithInstance(sqlDB.DB, &postgres.Config{})
	is.NoErr(err)

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", os.Getenv("DATABASE_MIGRATIONS_PATH")),
		"postgres", driver)
	is.NoErr(err)

	t.Cleanup(func() {
		is.NoErr(m.Up())
	})

	err = m.Down()
	is.NoErr(err)
	sqlStatement := `SELECT EXISTS (
		SELECT FROM
			pg_tables
		WHERE
			schemaname = 'public' AND
			tablename  = 'borrowings'
		);`
	var tableExists bool
	err = sqlDB.QueryRow(sqlStatement).Scan(&tableExists)
	is.NoErr(err)
	is.True(!tableExists)
}
