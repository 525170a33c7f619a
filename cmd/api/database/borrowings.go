package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

var borrowingSelect = []any{"id", "user_id", "book_id", "due_date", "is_returned", "return_date", "created_at", "updated_at"}

type borrowingRow struct {
	ID         uuid.UUID    `db:"id"`
	UserID     uuid.UUID    `db:"user_id"`
	BookID     uuid.UUID    `db:"book_id"`
	DueDate    time.Time    `db:"due_date"`
	IsReturned bool         `db:"is_returned"`
	ReturnDate sql.NullTime `db:"return_date"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

func (r borrowingRow) toBorrowing() library.Borrowing {
	b := library.Borrowing{
		ID:         r.ID,
		UserID:     r.UserID,
		BookID:     r.BookID,
		DueDate:    r.DueDate.UTC(),
		IsReturned: r.IsReturned,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.ReturnDate.Valid {
		at := r.ReturnDate.Time.UTC()
		b.ReturnDate = &at
	}
	return b
}

func toBorrowings(rows []borrowingRow) []library.Borrowing {
	borrowings := make([]library.Borrowing, 0, len(rows))
	for _, r := range rows {
		borrowings = append(borrowings, r.toBorrowing())
	}
	return borrowings
}

/* Inserts every borrowing with one statement and returns the stored rows. */
func (store *Store) InsertBorrowings(ctx context.Context, borrowings []library.Borrowing) ([]library.Borrowing, error) {
	if len(borrowings) == 0 {
		return []library.Borrowing{}, nil
	}

	records := make([]any, 0, len(borrowings))
	for _, b := range borrowings {
		var returnDate any
		if b.ReturnDate != nil {
			returnDate = *b.ReturnDate
		}
		records = append(records, goqu.Record{
			"id":          b.ID.String(),
			"user_id":     b.UserID.String(),
			"book_id":     b.BookID.String(),
			"due_date":    b.DueDate,
			"is_returned": b.IsReturned,
			"return_date": returnDate,
			"created_at":  b.CreatedAt,
			"updated_at":  b.UpdatedAt,
		})
	}

	sqlQuery, args, err := dialect.Insert("borrowings").
		Prepared(true).
		Rows(records...).
		Returning(borrowingSelect...).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("storing borrowings, building query: %w", err)
	}

	var rows []borrowingRow
	if err := store.selectRows(ctx, "InsertBorrowings", &rows, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("storing borrowings on db: %w", translate(err))
	}
	return toBorrowings(rows), nil
}

func openConditions(userID uuid.UUID, bookIDs []uuid.UUID) []exp.Expression {
	return []exp.Expression{
		goqu.C("user_id").Eq(userID.String()),
		goqu.C("book_id").In(idStrings(bookIDs)),
		goqu.C("is_returned").IsFalse(),
	}
}

func (store *Store) FindOpenBorrowings(ctx context.Context, userID uuid.UUID, bookIDs []uuid.UUID) ([]library.Borrowing, error) {
	if len(bookIDs) == 0 {
		return []library.Borrowing{}, nil
	}

	sqlQuery, args, err := dialect.From("borrowings").
		Prepared(true).
		Select(borrowingSelect...).
		Where(openConditions(userID, bookIDs)...).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("searching open borrowings, building query: %w", err)
	}

	var rows []borrowingRow
	if err := store.selectRows(ctx, "FindOpenBorrowings", &rows, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("searching open borrowings: %w", err)
	}
	return toBorrowings(rows), nil
}

/* Closes the open borrowings of the user for bookIDs in one statement, returning the closed rows. */
func (store *Store) MarkReturned(ctx context.Context, userID uuid.UUID, bookIDs []uuid.UUID, returnedAt time.Time) ([]library.Borrowing, error) {
	if len(bookIDs) == 0 {
		return []library.Borrowing{}, nil
	}

	sqlQuery, args, err := dialect.Update("borrowings").
		Prepared(true).
		Set(goqu.Record{
			"is_returned": true,
			"return_date": returnedAt,
			"updated_at":  returnedAt,
		}).
		Where(openConditions(userID, bookIDs)...).
		Returning(borrowingSelect...).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("marking borrowings returned, building query: %w", err)
	}

	var rows []borrowingRow
	if err := store.selectRows(ctx, "MarkReturned", &rows, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("marking borrowings returned on db: %w", err)
	}
	return toBorrowings(rows), nil
}

func (store *Store) ListBorrowings(ctx context.Context, filter library.BorrowingFilter) ([]library.Borrowing, error) {
	conditions := []exp.Expression{}
	if filter.UserID != nil {
		conditions = append(conditions, goqu.C("user_id").Eq(filter.UserID.String()))
	}
	if filter.BookID != nil {
		conditions = append(conditions, goqu.C("book_id").Eq(filter.BookID.String()))
	}
	if filter.OnlyOpen {
		conditions = append(conditions, goqu.C("is_returned").IsFalse())
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, goqu.C("created_at").Gte(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, goqu.C("created_at").Lte(*filter.CreatedTo))
	}

	sqlQuery, args, err := dialect.From("borrowings").
		Prepared(true).
		Select(borrowingSelect...).
		Where(conditions...).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("listing borrowings, building query: %w", err)
	}

	var rows []borrowingRow
	if err := store.selectRows(ctx, "ListBorrowings", &rows, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("listing borrowings from db: %w", err)
	}
	return toBorrowings(rows), nil
}
