package library

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

var ErrResponseBookEntryBlankFields = ErrResponse{100, "all the fields - title, author, isbn, shelf_location and total_quantity - must be filled correctly."}
var ErrResponseBookNotFound = ErrResponse{101, "book not found"}
var ErrResponseEntryInvalidJSON = ErrResponse{102, "invalid json request."}
var ErrResponseIdInvalidFormat = ErrResponse{103, "the endpoint is not a valid format ID. Must be a uuid"}
var ErrResponseQueryDateInvalidFormat = ErrResponse{104, "query parameters 'from' and 'to' must be RFC3339 dates, 'from' not after 'to'."}
var ErrResponseQuerySortByInvalid = ErrResponse{105, "query parameter 'sort_by' must be: title, author, available_quantity or created_at. 'sort_direction' must be asc or desc."}
var ErrResponseQueryPageInvalid = ErrResponse{106, "query parameter 'page' must be an int starting in 1. 'page_size' must be an int beetween 1 and 30."}
var ErrResponseQueryPageOutOfRange = ErrResponse{107, "page out of range."}
var ErrResponseTransactionFailed = ErrResponse{108, "transaction failed"}
var ErrResponseRequestTimeout = ErrResponse{109, "context deadline exceeded"}
var ErrResponseUserNotFound = ErrResponse{110, "user not found"}
var ErrResponseUserEntryBlankFields = ErrResponse{111, "fields name and email must be filled correctly."}
var ErrResponseEmailAlreadyExists = ErrResponse{112, "there is already a user with this email."}
var ErrResponseISBNAlreadyExists = ErrResponse{113, "there is already a book with this isbn."}
var ErrResponseAvailabilityExceedsTotal = ErrResponse{114, "available_quantity must be between 0 and total_quantity."}
var ErrResponseBorrowEntryBlankFields = ErrResponse{115, "field borrowings must list at least one book_id with a due_date."}
var ErrResponseDueDateInPast = ErrResponse{116, "due_date cannot be earlier than the current time."}
var ErrResponseDuplicateBookInRequest = ErrResponse{117, "the same book_id cannot be borrowed twice in one request."}
var ErrResponseDuplicateBorrow = ErrResponse{118, "user already holds an open borrowing for one of the requested books."}
var ErrResponseBooksUnavailable = ErrResponse{119, "one or more of the requested books are unavailable."}
var ErrResponseReturnEntryBlankFields = ErrResponse{120, "field books must list at least one book id."}
var ErrResponseAuthEntryBlankFields = ErrResponse{121, "fields email and password must be filled correctly."}
var ErrResponseAccessDenied = ErrResponse{122, "access denied"}
var ErrResponseUnauthorized = ErrResponse{123, "valid bearer token required"}
var ErrResponseReportNotFound = ErrResponse{124, "file not found"}
var ErrResponseFromRepository = ErrResponse{125, "error from repository: "}
var ErrResponseTooManyRequests = ErrResponse{126, "too many requests, try again later"}
