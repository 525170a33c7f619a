package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/library-service/cmd/api/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Handler struct {
	service library.ServiceAPI
	logger  *slog.Logger
}

func NewHandler(service library.ServiceAPI, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

/* Reads the JSON body into entry, answering with an invalid json error when it can't. */
func (h *Handler) decodeEntry(w http.ResponseWriter, r *http.Request, entry any) bool {
	err := json.NewDecoder(r.Body).Decode(entry)
	if err != nil {
		h.logger.Debug("invalid json entry", "path", r.URL.Path, "error", err)
		errR := library.ErrResponse{
			Code:    library.ErrResponseEntryInvalidJSON.Code,
			Message: library.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		responseJSON(w, http.StatusBadRequest, errR)
		return false
	}
	return true
}

/* Isolates the ID from the URL. */
func isolateId(w http.ResponseWriter, r *http.Request) (id uuid.UUID, err error) {
	id, err = uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		responseJSON(w, http.StatusBadRequest, library.ErrResponseIdInvalidFormat)
		return id, err
	}
	return id, nil
}

/* Translates a service error into its status code and body. */
func (h *Handler) handleError(err error, w http.ResponseWriter, r *http.Request) {
	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn("request timed out", "path", r.URL.Path, "error", err)
		responseJSON(w, http.StatusGatewayTimeout, library.ErrResponseRequestTimeout)
		return
	}

	var errResp library.ErrResponse
	if !errors.As(err, &errResp) {
		h.logger.Error("unexpected error", "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch errResp.Code {
	case library.ErrResponseBookNotFound.Code,
		library.ErrResponseUserNotFound.Code,
		library.ErrResponseReportNotFound.Code:
		responseJSON(w, http.StatusNotFound, errResp)
	case library.ErrResponseEmailAlreadyExists.Code,
		library.ErrResponseISBNAlreadyExists.Code:
		responseJSON(w, http.StatusConflict, errResp)
	case library.ErrResponseAccessDenied.Code,
		library.ErrResponseUnauthorized.Code:
		responseJSON(w, http.StatusUnauthorized, errResp)
	case library.ErrResponseTransactionFailed.Code,
		library.ErrResponseFromRepository.Code:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		responseJSON(w, http.StatusInternalServerError, library.ErrResponseTransactionFailed)
	default:
		responseJSON(w, http.StatusBadRequest, errResp)
	}
}

/*Writes a JSON response into a http.ResponseWriter. */
func responseJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

/*Validates and prepares the paging parameters of the query.*/
func extractPageParams(query url.Values) (page, pageSize int, valid bool) {
	var err error
	pageStr := query.Get("page") //Convert page value to int and set default to 1.
	if pageStr == "" {
		page = 1
	} else {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page <= 0 {
			return 0, 0, false
		}
	}

	pageSizeStr := query.Get("page_size") //Convert page_size value to int and set default to 10.
	if pageSizeStr == "" {
		pageSize = 10
	} else {
		pageSize, err = strconv.Atoi(pageSizeStr)
		if err != nil || !(0 < pageSize && pageSize <= library.MaxPageSize) {
			return 0, 0, false
		}
	}

	return page, pageSize, true
}
