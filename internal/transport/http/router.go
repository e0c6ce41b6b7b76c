// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services without embedding business logic so transport concerns remain
// isolated.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deployassist/internal/analysis"
	"deployassist/internal/ghost"
	"deployassist/internal/lifecycle"
	"deployassist/internal/snapshot"
	"deployassist/pkg/platform/middleware/auth"
)

// AnalysisService is the engine surface the API exposes.
type AnalysisService interface {
	Run(ctx context.Context) (*analysis.RunSummary, bool, error)
	Status() analysis.Status
	AccountEntitlements(ctx context.Context, accountID string) ([]lifecycle.Classified, lifecycle.Summary, error)
}

// ReviewService is the ghost-account review surface.
type ReviewService interface {
	List(ctx context.Context, filter ghost.ListFilter) ([]ghost.Candidate, int, error)
	MarkReviewed(ctx context.Context, accountID, reviewer, notes string) error
	Remove(ctx context.Context, accountID string) error
}

// HistoryService reads a record's audit ledger.
type HistoryService interface {
	History(ctx context.Context, recordID string) ([]snapshot.Entry, error)
}

// Handler holds the services behind the API.
type Handler struct {
	logger   *slog.Logger
	analysis AnalysisService
	review   ReviewService
	history  HistoryService
}

// New creates the API handler.
func New(analysisSvc AnalysisService, review ReviewService, history HistoryService, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		analysis: analysisSvc,
		review:   review,
		history:  history,
	}
}

// NewRouter wires all endpoints. The review endpoint is the only mutating,
// human-attributed one and sits behind the reviewer token check.
func NewRouter(h *Handler, reviewValidator auth.Validator) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/analysis/refresh", h.handleRefresh)
	r.Get("/analysis/status", h.handleStatus)

	r.Get("/accounts/{accountID}/entitlements", h.handleAccountEntitlements)
	r.Get("/records/{recordID}/history", h.handleRecordHistory)

	r.Route("/ghost-accounts", func(r chi.Router) {
		r.Get("/", h.handleListGhosts)
		r.Delete("/{accountID}", h.handleRemoveGhost)
		r.With(auth.RequireReviewer(reviewValidator, h.logger)).
			Post("/{accountID}/review", h.handleReviewGhost)
	})

	return r
}
