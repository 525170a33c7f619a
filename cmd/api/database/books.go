package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

const bookColumns = `id, title, author, isbn, shelf_location, total_quantity, available_quantity, created_at, updated_at`

var bookSelect = []any{"id", "title", "author", "isbn", "shelf_location", "total_quantity", "available_quantity", "created_at", "updated_at"}

var bookSortColumns = map[string]string{
	"title":              "title",
	"author":             "author",
	"available_quantity": "available_quantity",
	"created_at":         "created_at",
}

type bookRow struct {
	ID                uuid.UUID `db:"id"`
	Title             string    `db:"title"`
	Author            string    `db:"author"`
	ISBN              string    `db:"isbn"`
	ShelfLocation     string    `db:"shelf_location"`
	TotalQuantity     int       `db:"total_quantity"`
	AvailableQuantity int       `db:"available_quantity"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r bookRow) toBook() library.Book {
	return library.Book{
		ID:                r.ID,
		Title:             r.Title,
		Author:            r.Author,
		ISBN:              r.ISBN,
		ShelfLocation:     r.ShelfLocation,
		TotalQuantity:     r.TotalQuantity,
		AvailableQuantity: r.AvailableQuantity,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func toBooks(rows []bookRow) []library.Book {
	books := make([]library.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, r.toBook())
	}
	return books
}

/* Stores the book into the database, checks and returns it if succeed. */
func (store *Store) CreateBook(ctx context.Context, bookEntry library.Book) (library.Book, error) {
	sqlStatement := `
	INSERT INTO books (id, title, author, isbn, shelf_location, total_quantity, available_quantity, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING ` + bookColumns
	var row bookRow
	err := store.get(ctx, "CreateBook", &row, sqlStatement,
		bookEntry.ID, bookEntry.Title, bookEntry.Author, bookEntry.ISBN, bookEntry.ShelfLocation,
		bookEntry.TotalQuantity, bookEntry.AvailableQuantity, bookEntry.CreatedAt, bookEntry.UpdatedAt)
	if err != nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", translate(err))
	}

	return row.toBook(), nil
}

/* Searches a book in database based on ID and returns it if succeed. */
func (store *Store) GetBookByID(ctx context.Context, id uuid.UUID) (library.Book, error) {
	sqlStatement := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	return store.oneBook(ctx, "GetBookByID", sqlStatement, id)
}

/* Same as GetBookByID, holding the row until the surrounding transaction ends. */
func (store *Store) LockBook(ctx context.Context, id uuid.UUID) (library.Book, error) {
	sqlStatement := `SELECT ` + bookColumns + ` FROM books WHERE id = $1 FOR UPDATE`
	return store.oneBook(ctx, "LockBook", sqlStatement, id)
}

func (store *Store) oneBook(ctx context.Context, action, sqlStatement string, id uuid.UUID) (library.Book, error) {
	var row bookRow
	err := store.get(ctx, action, &row, sqlStatement, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return library.Book{}, fmt.Errorf("searching by ID: %w", library.ErrResponseBookNotFound)
		}
		return library.Book{}, fmt.Errorf("searching by ID: %w", err)
	}
	return row.toBook(), nil
}

func bookConditions(filter library.BookFilter) []exp.Expression {
	conditions := []exp.Expression{}
	if filter.Title != "" {
		conditions = append(conditions, goqu.C("title").ILike("%"+filter.Title+"%"))
	}
	if filter.Author != "" {
		conditions = append(conditions, goqu.C("author").ILike("%"+filter.Author+"%"))
	}
	if filter.ISBN != "" {
		conditions = append(conditions, goqu.C("isbn").Eq(filter.ISBN))
	}
	return conditions
}

func (store *Store) ListBooks(ctx context.Context, req library.ListBooksRequest) ([]library.Book, error) {
	column, ok := bookSortColumns[req.SortBy]
	if !ok {
		column = "created_at"
	}
	order := goqu.I(column).Asc()
	if req.SortDirection == "desc" {
		order = goqu.I(column).Desc()
	}

	query := dialect.From("books").
		Prepared(true).
		Select(bookSelect...).
		Where(bookConditions(req.Filter)...).
		Order(order, goqu.I("id").Asc())
	if req.Page > 0 && req.PageSize > 0 {
		query = query.Limit(uint(req.PageSize)).Offset(uint((req.Page - 1) * req.PageSize))
	}

	sqlQuery, args, err := query.ToSQL()
	if err != nil {
		return []library.Book{}, fmt.Errorf("listing books from db, building query: %w", err)
	}

	var rows []bookRow
	if err := store.selectRows(ctx, "ListBooks", &rows, sqlQuery, args...); err != nil {
		return []library.Book{}, fmt.Errorf("listing books from db: %w", err)
	}
	return toBooks(rows), nil
}

func (store *Store) CountBooks(ctx context.Context, filter library.BookFilter) (int, error) {
	sqlQuery, args, err := dialect.From("books").
		Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(bookConditions(filter)...).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("counting books from db, building query: %w", err)
	}

	var total int
	if err := store.get(ctx, "CountBooks", &total, sqlQuery, args...); err != nil {
		return 0, fmt.Errorf("counting books from db: %w", err)
	}
	return total, nil
}

/* Overwrites every mutable column of the book. created_at is never touched. */
func (store *Store) UpdateBook(ctx context.Context, bookEntry library.Book) (library.Book, error) {
	sqlStatement := `
	UPDATE books
	SET title = $2, author = $3, isbn = $4, shelf_location = $5, total_quantity = $6, available_quantity = $7, updated_at = $8
	WHERE id = $1
	RETURNING ` + bookColumns
	var row bookRow
	err := store.get(ctx, "UpdateBook", &row, sqlStatement,
		bookEntry.ID, bookEntry.Title, bookEntry.Author, bookEntry.ISBN, bookEntry.ShelfLocation,
		bookEntry.TotalQuantity, bookEntry.AvailableQuantity, bookEntry.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return library.Book{}, fmt.Errorf("updating book on db: %w", library.ErrResponseBookNotFound)
		}
		return library.Book{}, fmt.Errorf("updating book on db: %w", translate(err))
	}

	return row.toBook(), nil
}

// Borrowings of the book go with it (ON DELETE CASCADE).
func (store *Store) DeleteBook(ctx context.Context, id uuid.UUID) error {
	affected, err := store.exec(ctx, "DeleteBook", `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting book on db: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deleting book on db: %w", library.ErrResponseBookNotFound)
	}
	return nil
}

/*
Returns the books of ids that still have a copy on the shelf. Rows are locked in id order
so two transactions asking for overlapping sets queue up instead of deadlocking.
*/
func (store *Store) FindAvailableBooks(ctx context.Context, ids []uuid.UUID) ([]library.Book, error) {
	if len(ids) == 0 {
		return []library.Book{}, nil
	}

	sqlQuery, args, err := dialect.From("books").
		Prepared(true).
		Select(bookSelect...).
		Where(
			goqu.C("id").In(idStrings(ids)),
			goqu.C("available_quantity").Gt(0),
		).
		Order(goqu.I("id").Asc()).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("searching available books, building query: %w", err)
	}

	var rows []bookRow
	if err := store.selectRows(ctx, "FindAvailableBooks", &rows, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("searching available books: %w", err)
	}
	return toBooks(rows), nil
}

/* In-place arithmetic update; rows whose result would leave [0, total_quantity] are skipped. */
func (store *Store) AdjustAvailability(ctx context.Context, ids []uuid.UUID, delta int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	sqlQuery, args, err := dialect.Update("books").
		Prepared(true).
		Set(goqu.Record{
			"available_quantity": goqu.L("available_quantity + ?", delta),
			"updated_at":         goqu.L("NOW()"),
		}).
		Where(
			goqu.C("id").In(idStrings(ids)),
			goqu.L("available_quantity + ? BETWEEN 0 AND total_quantity", delta),
		).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("adjusting availability, building query: %w", err)
	}

	affected, err := store.exec(ctx, "AdjustAvailability", sqlQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("adjusting availability on db: %w", translate(err))
	}
	return affected, nil
}
