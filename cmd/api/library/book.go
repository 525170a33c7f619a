package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type Book struct {
	ID                uuid.UUID
	Title             string
	Author            string
	ISBN              string
	ShelfLocation     string
	TotalQuantity     int
	AvailableQuantity int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

/* Reports whether the quantities respect 0 <= available <= total. */
func (b Book) ValidQuantities() bool {
	return b.TotalQuantity >= 0 && b.AvailableQuantity >= 0 && b.AvailableQuantity <= b.TotalQuantity
}

type CreateBookRequest struct {
	Title         string
	Author        string
	ISBN          string
	ShelfLocation string
	TotalQuantity *int
}

/* Verifies if all entry fields are filled. */
func (r CreateBookRequest) Validate() error {
	if r.Title == "" || r.Author == "" || r.ISBN == "" || r.ShelfLocation == "" {
		return ErrResponseBookEntryBlankFields
	}
	if r.TotalQuantity == nil || *r.TotalQuantity < 0 {
		return ErrResponseBookEntryBlankFields
	}
	return nil
}

// UpdateBookRequest carries a partial update: nil fields keep the stored value.
type UpdateBookRequest struct {
	ID                uuid.UUID
	Title             *string
	Author            *string
	ISBN              *string
	ShelfLocation     *string
	TotalQuantity     *int
	AvailableQuantity *int
}

func (r UpdateBookRequest) apply(b Book) Book {
	if r.Title != nil {
		b.Title = *r.Title
	}
	if r.Author != nil {
		b.Author = *r.Author
	}
	if r.ISBN != nil {
		b.ISBN = *r.ISBN
	}
	if r.ShelfLocation != nil {
		b.ShelfLocation = *r.ShelfLocation
	}
	if r.TotalQuantity != nil {
		b.TotalQuantity = *r.TotalQuantity
	}
	if r.AvailableQuantity != nil {
		b.AvailableQuantity = *r.AvailableQuantity
	}
	return b
}

type BookFilter struct {
	Title  string
	Author string
	ISBN   string
}

type ListBooksRequest struct {
	Filter        BookFilter
	SortBy        string
	SortDirection string
	Page          int
	PageSize      int
}

var BookSortColumns = []string{"title", "author", "available_quantity", "created_at"}

func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (Book, error) {
	if err := req.Validate(); err != nil {
		return Book{}, err
	}

	createdAt := s.now()
	newBook := Book{
		ID:                uuid.New(),
		Title:             req.Title,
		Author:            req.Author,
		ISBN:              req.ISBN,
		ShelfLocation:     req.ShelfLocation,
		TotalQuantity:     *req.TotalQuantity,
		AvailableQuantity: *req.TotalQuantity,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}

	return s.repo.CreateBook(ctx, newBook)
}

func (s *Service) GetBook(ctx context.Context, id uuid.UUID) (Book, error) {
	return s.repo.GetBookByID(ctx, id)
}

func (s *Service) ListBooks(ctx context.Context, req ListBooksRequest) (Page[Book], error) {
	if req.SortBy == "" {
		req.SortBy = "created_at"
	}
	if req.SortDirection == "" {
		req.SortDirection = "asc"
	}
	if !slices.Contains(BookSortColumns, req.SortBy) || (req.SortDirection != "asc" && req.SortDirection != "desc") {
		return Page[Book]{}, ErrResponseQuerySortByInvalid
	}

	itemsTotal, err := s.repo.CountBooks(ctx, req.Filter)
	if err != nil {
		return Page[Book]{}, repositoryError("CountBooks", err)
	}

	if itemsTotal == 0 {
		return Page[Book]{Results: []Book{}}, nil
	}

	pageTotal, err := countPages(itemsTotal, req.Page, req.PageSize)
	if err != nil {
		return Page[Book]{}, err
	}

	books, err := s.repo.ListBooks(ctx, req)
	if err != nil {
		return Page[Book]{}, repositoryError("ListBooks", err)
	}

	return Page[Book]{
		PageCurrent: req.Page,
		PageTotal:   pageTotal,
		PageSize:    req.PageSize,
		ItemsTotal:  itemsTotal,
		Results:     books,
	}, nil
}

/* Applies a partial update to a book while holding its row, re-validating the quantities. */
func (s *Service) UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error) {
	var updated Book
	err := s.withTx(ctx, "UpdateBook", func(tx Repository) error {
		stored, err := tx.LockBook(ctx, req.ID)
		if err != nil {
			return err
		}

		candidate := req.apply(stored)
		if candidate.Title == "" || candidate.Author == "" || candidate.ISBN == "" || candidate.ShelfLocation == "" {
			return ErrResponseBookEntryBlankFields
		}
		if !candidate.ValidQuantities() {
			return ErrResponseAvailabilityExceedsTotal
		}
		candidate.UpdatedAt = s.now()

		updated, err = tx.UpdateBook(ctx, candidate)
		return err
	})
	if err != nil {
		return Book{}, err
	}

	return updated, nil
}

func (s *Service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteBook(ctx, id)
}

/* Keeps the known error kinds and decorates the unexpected ones from the repository. */
func repositoryError(call string, err error) error {
	var errResp ErrResponse
	if errors.As(err, &errResp) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("timeout on call to %s: %w", call, err)
	}
	return ErrResponse{
		Code:    ErrResponseFromRepository.Code,
		Message: ErrResponseFromRepository.Message + err.Error(),
	}
}
