package library

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

/*
BorrowBooks checks out one copy of every requested book for the user, all or nothing.
The user row is locked first so two requests of the same user never interleave, and the
requested books stay locked until the decrement is written.
*/
func (s *Service) BorrowBooks(ctx context.Context, userID uuid.UUID, requests []BorrowRequest) ([]Borrowing, error) {
	if len(requests) == 0 {
		return nil, ErrResponseBorrowEntryBlankFields
	}

	now := s.now()
	bookIDs := make([]uuid.UUID, 0, len(requests))
	seen := make(map[uuid.UUID]struct{}, len(requests))
	for _, r := range requests {
		if r.BookID == uuid.Nil || r.DueDate.IsZero() {
			return nil, ErrResponseBorrowEntryBlankFields
		}
		if r.DueDate.Before(now) {
			return nil, ErrResponseDueDateInPast
		}
		if _, dup := seen[r.BookID]; dup {
			return nil, ErrResponseDuplicateBookInRequest
		}
		seen[r.BookID] = struct{}{}
		bookIDs = append(bookIDs, r.BookID)
	}

	var created []Borrowing
	err := s.withTx(ctx, "BorrowBooks", func(tx Repository) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}

		open, err := tx.FindOpenBorrowings(ctx, userID, bookIDs)
		if err != nil {
			return fmt.Errorf("searching open borrowings: %w", err)
		}
		if len(open) > 0 {
			return ErrResponseDuplicateBorrow
		}

		available, err := tx.FindAvailableBooks(ctx, bookIDs)
		if err != nil {
			return fmt.Errorf("searching available books: %w", err)
		}
		if len(available) < len(bookIDs) {
			return ErrResponseBooksUnavailable
		}

		rows := make([]Borrowing, 0, len(requests))
		for _, r := range requests {
			rows = append(rows, Borrowing{
				ID:        uuid.New(),
				UserID:    userID,
				BookID:    r.BookID,
				DueDate:   r.DueDate,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		created, err = tx.InsertBorrowings(ctx, rows)
		if err != nil {
			return fmt.Errorf("inserting borrowings: %w", err)
		}

		affected, err := tx.AdjustAvailability(ctx, bookIDs, -1)
		if err != nil {
			return fmt.Errorf("decrementing availability: %w", err)
		}
		if affected < len(bookIDs) {
			return ErrResponseBooksUnavailable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created = s.markOverdue(created)
	s.notify("BorrowBooks", func(ctx context.Context, n Notifier) error {
		return n.BooksBorrowed(ctx, userID, created)
	})

	return created, nil
}

/*
ReturnBooks closes the user's open borrowings for bookIDs and puts one copy of each
closed book back on the shelf. Books with nothing open to close are left untouched.
*/
func (s *Service) ReturnBooks(ctx context.Context, userID uuid.UUID, bookIDs []uuid.UUID) (ReturnedBooks, error) {
	if len(bookIDs) == 0 {
		return ReturnedBooks{}, ErrResponseReturnEntryBlankFields
	}

	ids := make([]uuid.UUID, 0, len(bookIDs))
	seen := make(map[uuid.UUID]struct{}, len(bookIDs))
	for _, id := range bookIDs {
		if id == uuid.Nil {
			return ReturnedBooks{}, ErrResponseReturnEntryBlankFields
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	now := s.now()
	var closed []Borrowing
	err := s.withTx(ctx, "ReturnBooks", func(tx Repository) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}

		var err error
		closed, err = tx.MarkReturned(ctx, userID, ids, now)
		if err != nil {
			return fmt.Errorf("marking borrowings returned: %w", err)
		}
		if len(closed) == 0 {
			return nil
		}

		returnedIDs := make([]uuid.UUID, 0, len(closed))
		for _, b := range closed {
			returnedIDs = append(returnedIDs, b.BookID)
		}
		affected, err := tx.AdjustAvailability(ctx, returnedIDs, 1)
		if err != nil {
			return fmt.Errorf("restoring availability: %w", err)
		}
		if affected < len(returnedIDs) {
			s.logger.Warn("availability already at total on return",
				"user_id", userID, "returned", len(returnedIDs), "restored", affected)
		}
		return nil
	})
	if err != nil {
		return ReturnedBooks{}, err
	}

	if closed == nil {
		closed = []Borrowing{}
	}
	closed = s.markOverdue(closed)
	if len(closed) > 0 {
		s.notify("ReturnBooks", func(ctx context.Context, n Notifier) error {
			return n.BooksReturned(ctx, userID, closed)
		})
	}

	return ReturnedBooks{AffectedCount: len(closed), Borrowings: closed}, nil
}
