package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

type BorrowEntry struct {
	Borrowings []BorrowItemEntry `json:"borrowings"`
}

type BorrowItemEntry struct {
	BookID  uuid.UUID `json:"book_id"`
	DueDate time.Time `json:"due_date"`
}

type ReturnEntry struct {
	Books []uuid.UUID `json:"books"`
}

type BorrowingResponse struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	BookID     uuid.UUID  `json:"book_id"`
	DueDate    time.Time  `json:"due_date"`
	IsReturned bool       `json:"is_returned"`
	ReturnDate *time.Time `json:"return_date"`
	IsOverdue  bool       `json:"is_overdue"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type dataResponse struct {
	Data any `json:"data"`
}

type borrowedResponse struct {
	Borrowings []BorrowingResponse `json:"borrowings"`
}

type returnedResponse struct {
	AffectedCount      int                 `json:"affected_count"`
	ReturnedBorrowings []BorrowingResponse `json:"returned_borrowings"`
}

/* Borrows every listed book for the user in one transaction. */
func (h *Handler) borrowBooks(w http.ResponseWriter, r *http.Request) {
	userID, err := isolateId(w, r)
	if err != nil {
		return
	}

	var borrowEntry BorrowEntry
	if !h.decodeEntry(w, r, &borrowEntry) {
		return
	}

	requests := make([]library.BorrowRequest, 0, len(borrowEntry.Borrowings))
	for _, item := range borrowEntry.Borrowings {
		requests = append(requests, library.BorrowRequest{BookID: item.BookID, DueDate: item.DueDate})
	}

	borrowings, err := h.service.BorrowBooks(r.Context(), userID, requests)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusCreated, dataResponse{Data: borrowedResponse{Borrowings: borrowingsToResponse(borrowings)}})
}

/* Closes the user's open borrowings of the listed books. */
func (h *Handler) returnBooks(w http.ResponseWriter, r *http.Request) {
	userID, err := isolateId(w, r)
	if err != nil {
		return
	}

	var returnEntry ReturnEntry
	if !h.decodeEntry(w, r, &returnEntry) {
		return
	}

	returned, err := h.service.ReturnBooks(r.Context(), userID, returnEntry.Books)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, dataResponse{Data: returnedResponse{
		AffectedCount:      returned.AffectedCount,
		ReturnedBorrowings: borrowingsToResponse(returned.Borrowings),
	}})
}

/* Lists the user's borrowings; open=true keeps only the ones not returned yet. */
func (h *Handler) listUserBorrowings(w http.ResponseWriter, r *http.Request) {
	userID, err := isolateId(w, r)
	if err != nil {
		return
	}

	onlyOpen := r.URL.Query().Get("open") == "true"

	borrowings, err := h.service.ListUserBorrowings(r.Context(), userID, onlyOpen)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, dataResponse{Data: borrowedResponse{Borrowings: borrowingsToResponse(borrowings)}})
}

func borrowingToResponse(b library.Borrowing) BorrowingResponse {
	return BorrowingResponse{
		ID:         b.ID,
		UserID:     b.UserID,
		BookID:     b.BookID,
		DueDate:    b.DueDate,
		IsReturned: b.IsReturned,
		ReturnDate: b.ReturnDate,
		IsOverdue:  b.IsOverdue,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func borrowingsToResponse(borrowings []library.Borrowing) []BorrowingResponse {
	results := []BorrowingResponse{}
	for _, b := range borrowings {
		results = append(results, borrowingToResponse(b))
	}
	return results
}
