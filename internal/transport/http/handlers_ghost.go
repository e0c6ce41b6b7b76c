package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"deployassist/internal/ghost"
	"deployassist/pkg/platform/httputil"
	"deployassist/pkg/platform/middleware/auth"
)

const (
	defaultGhostPageSize = 50
	maxGhostPageSize     = 500
)

type ghostListResponse struct {
	Candidates []ghost.Candidate `json:"candidates"`
	Total      int               `json:"total"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

func (h *Handler) handleListGhosts(w http.ResponseWriter, r *http.Request) {
	filter, ok := ghostListFilter(w, r)
	if !ok {
		return
	}

	candidates, total, err := h.review.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ghost candidate list failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	if candidates == nil {
		candidates = []ghost.Candidate{}
	}
	httputil.WriteJSON(w, http.StatusOK, ghostListResponse{
		Candidates: candidates,
		Total:      total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

// handleReviewGhost records a sign-off. The reviewer identity comes from the
// verified token, never from the request body.
func (h *Handler) handleReviewGhost(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	reviewer := auth.GetReviewerEmail(r.Context())
	if reviewer == "" {
		h.logger.ErrorContext(r.Context(), "reviewer missing from context despite auth middleware",
			"account_id", accountID,
		)
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	req, ok := httputil.Decode[reviewRequest](w, r, h.logger)
	if !ok {
		return
	}

	if err := h.review.MarkReviewed(r.Context(), accountID, reviewer, req.Notes); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveGhost(w http.ResponseWriter, r *http.Request) {
	if err := h.review.Remove(r.Context(), chi.URLParam(r, "accountID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ghostListFilter(w http.ResponseWriter, r *http.Request) (ghost.ListFilter, bool) {
	filter := ghost.ListFilter{
		AccountName: r.URL.Query().Get("account"),
		Limit:       defaultGhostPageSize,
	}

	if v := r.URL.Query().Get("reviewed"); v != "" {
		reviewed, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteBadRequest(w, "reviewed must be true or false")
			return filter, false
		}
		filter.Reviewed = &reviewed
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > maxGhostPageSize {
			httputil.WriteBadRequest(w, "limit must be between 1 and 500")
			return filter, false
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			httputil.WriteBadRequest(w, "offset must be non-negative")
			return filter, false
		}
		filter.Offset = offset
	}
	return filter, true
}
