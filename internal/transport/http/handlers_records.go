package httptransport

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deployassist/internal/snapshot"
	"deployassist/pkg/platform/httputil"
	"deployassist/pkg/platform/sentinel"
)

type historyResponse struct {
	RecordID string           `json:"recordId"`
	Entries  []snapshot.Entry `json:"entries"`
}

// handleRecordHistory returns a record's ledger entries, newest first.
func (h *Handler) handleRecordHistory(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")
	if recordID == "" {
		httputil.WriteBadRequest(w, "record id is required")
		return
	}

	entries, err := h.history.History(r.Context(), recordID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "record history lookup failed",
			"record_id", recordID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if len(entries) == 0 {
		httputil.WriteError(w, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{RecordID: recordID, Entries: entries})
}
