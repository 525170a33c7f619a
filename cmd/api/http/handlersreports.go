package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/library-service/cmd/api/library"
)

type ReportResponse struct {
	FileID      string `json:"file_id"`
	DownloadURL string `json:"download_url"`
}

/* Exports the borrowings created between the optional from and to dates to a spreadsheet. */
func (h *Handler) generateReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, ok := parseDateParam(query.Get("from"))
	if !ok {
		responseJSON(w, http.StatusBadRequest, library.ErrResponseQueryDateInvalidFormat)
		return
	}
	to, ok := parseDateParam(query.Get("to"))
	if !ok {
		responseJSON(w, http.StatusBadRequest, library.ErrResponseQueryDateInvalidFormat)
		return
	}

	fileID, err := h.service.GenerateReport(r.Context(), library.ReportRequest{From: from, To: to})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, ReportResponse{
		FileID:      fileID,
		DownloadURL: fmt.Sprintf("/api/v1/reports/%s/download", fileID),
	})
}

func (h *Handler) downloadReport(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]

	path, err := h.service.LocateReport(r.Context(), fileID)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, fileID))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

/* An empty value is a missing bound; anything else must be RFC3339. */
func parseDateParam(value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, false
	}
	return &t, true
}
