package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"deployassist/internal/analysis"
	"deployassist/internal/lifecycle"
	"deployassist/pkg/platform/httputil"
)

type refreshResponse struct {
	Summary   *analysis.RunSummary `json:"summary"`
	Coalesced bool                 `json:"coalesced"`
}

// handleRefresh runs a full analysis pass synchronously. A trigger arriving
// while a run is already in flight joins that run and reports coalesced=true
// instead of queuing a second pass.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	summary, coalesced, err := h.analysis.Run(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "manual refresh failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, refreshResponse{Summary: summary, Coalesced: coalesced})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.analysis.Status())
}

type entitlementsResponse struct {
	AccountID    string                 `json:"accountId"`
	Entitlements []lifecycle.Classified `json:"entitlements"`
	Summary      lifecycle.Summary      `json:"summary"`
}

func (h *Handler) handleAccountEntitlements(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		httputil.WriteBadRequest(w, "account id is required")
		return
	}

	classified, summary, err := h.analysis.AccountEntitlements(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entitlementsResponse{
		AccountID:    accountID,
		Entitlements: classified,
		Summary:      summary,
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
