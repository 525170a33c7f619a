package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

type BookEntry struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	ShelfLocation string `json:"shelf_location"`
	TotalQuantity *int   `json:"total_quantity"`
}

type UpdateBookEntry struct {
	Title             *string `json:"title"`
	Author            *string `json:"author"`
	ISBN              *string `json:"isbn"`
	ShelfLocation     *string `json:"shelf_location"`
	TotalQuantity     *int    `json:"total_quantity"`
	AvailableQuantity *int    `json:"available_quantity"`
}

type BookResponse struct {
	ID                uuid.UUID `json:"id"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	ISBN              string    `json:"isbn"`
	ShelfLocation     string    `json:"shelf_location"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BookDetailResponse is a book together with its open borrowings.
type BookDetailResponse struct {
	BookResponse
	Borrowings []BorrowingResponse `json:"borrowings"`
}

/* Validates the entry, then stores the entry as a new book. */
func (h *Handler) createBook(w http.ResponseWriter, r *http.Request) {
	var bookEntry BookEntry
	if !h.decodeEntry(w, r, &bookEntry) {
		return
	}

	storedBook, err := h.service.CreateBook(r.Context(), library.CreateBookRequest{
		Title:         bookEntry.Title,
		Author:        bookEntry.Author,
		ISBN:          bookEntry.ISBN,
		ShelfLocation: bookEntry.ShelfLocation,
		TotalQuantity: bookEntry.TotalQuantity,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusCreated, bookToResponse(storedBook))
}

/* Returns the book with that specific ID and who currently holds a copy of it. */
func (h *Handler) getBookById(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	returnedBook, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	borrowings, err := h.service.ListBorrowings(r.Context(), library.BorrowingFilter{BookID: &id, OnlyOpen: true})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, BookDetailResponse{
		BookResponse: bookToResponse(returnedBook),
		Borrowings:   borrowingsToResponse(borrowings),
	})
}

/* Returns a page of the stored books, each with its open borrowings. */
func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, pageSize, valid := extractPageParams(query)
	if !valid {
		responseJSON(w, http.StatusBadRequest, library.ErrResponseQueryPageInvalid)
		return
	}

	params := library.ListBooksRequest{
		Filter: library.BookFilter{
			Title:  query.Get("title"),
			Author: query.Get("author"),
			ISBN:   query.Get("isbn"),
		},
		SortBy:        query.Get("sort_by"),
		SortDirection: query.Get("sort_direction"),
		Page:          page,
		PageSize:      pageSize,
	}

	pagedBooks, err := h.service.ListBooks(r.Context(), params)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	response := pageToResponse(pagedBooks, func(b library.Book) BookDetailResponse {
		return BookDetailResponse{BookResponse: bookToResponse(b), Borrowings: []BorrowingResponse{}}
	})
	for i := range response.Results {
		bookID := response.Results[i].ID
		borrowings, err := h.service.ListBorrowings(r.Context(), library.BorrowingFilter{BookID: &bookID, OnlyOpen: true})
		if err != nil {
			h.handleError(err, w, r)
			return
		}
		response.Results[i].Borrowings = borrowingsToResponse(borrowings)
	}

	responseJSON(w, http.StatusOK, response)
}

/* Applies the filled fields of the entry to the asked book. */
func (h *Handler) updateBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	var bookEntry UpdateBookEntry
	if !h.decodeEntry(w, r, &bookEntry) {
		return
	}

	updatedBook, err := h.service.UpdateBook(r.Context(), library.UpdateBookRequest{
		ID:                id,
		Title:             bookEntry.Title,
		Author:            bookEntry.Author,
		ISBN:              bookEntry.ISBN,
		ShelfLocation:     bookEntry.ShelfLocation,
		TotalQuantity:     bookEntry.TotalQuantity,
		AvailableQuantity: bookEntry.AvailableQuantity,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(updatedBook))
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		h.handleError(err, w, r)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

/*Copy the fields of a book object to an http layer struct with json tags*/
func bookToResponse(b library.Book) BookResponse {
	return BookResponse{
		ID:                b.ID,
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

type PageResponse[T any] struct {
	PageCurrent int `json:"page_current"`
	PageTotal   int `json:"page_total"`
	PageSize    int `json:"page_size"`
	ItemsTotal  int `json:"items_total"`
	Results     []T `json:"results"`
}

/*Copy the fields of a page to an http layer struct with json tags*/
func pageToResponse[T, R any](page library.Page[T], convert func(T) R) PageResponse[R] {
	results := []R{}
	for _, item := range page.Results {
		results = append(results, convert(item))
	}

	return PageResponse[R]{
		PageCurrent: page.PageCurrent,
		PageTotal:   page.PageTotal,
		PageSize:    page.PageSize,
		ItemsTotal:  page.ItemsTotal,
		Results:     results,
	}
}
