package library

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Borrowing struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	BookID     uuid.UUID
	DueDate    time.Time
	IsReturned bool
	ReturnDate *time.Time
	IsOverdue  bool // derived, never stored
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

/* A returned borrowing is overdue when it came back after the due date; an open one when now is past it. */
func (b Borrowing) OverdueAt(now time.Time) bool {
	if b.IsReturned && b.ReturnDate != nil {
		return b.ReturnDate.After(b.DueDate)
	}
	return now.After(b.DueDate)
}

type BorrowRequest struct {
	BookID  uuid.UUID
	DueDate time.Time
}

type ReturnedBooks struct {
	AffectedCount int
	Borrowings    []Borrowing
}

// Zero values leave the matching condition out of the query.
type BorrowingFilter struct {
	UserID      *uuid.UUID
	BookID      *uuid.UUID
	OnlyOpen    bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

func (s *Service) ListBorrowings(ctx context.Context, filter BorrowingFilter) ([]Borrowing, error) {
	borrowings, err := s.repo.ListBorrowings(ctx, filter)
	if err != nil {
		return nil, repositoryError("ListBorrowings", err)
	}
	return s.markOverdue(borrowings), nil
}

/* Lists the borrowings of an existing user, optionally only the ones not returned yet. */
func (s *Service) ListUserBorrowings(ctx context.Context, userID uuid.UUID, onlyOpen bool) ([]Borrowing, error) {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.ListBorrowings(ctx, BorrowingFilter{UserID: &userID, OnlyOpen: onlyOpen})
}

func (s *Service) markOverdue(borrowings []Borrowing) []Borrowing {
	now := s.now()
	for i := range borrowings {
		borrowings[i].IsOverdue = borrowings[i].OverdueAt(now)
	}
	return borrowings
}
