package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rosterlink/internal/enrichment"
	"rosterlink/internal/identity"
	dErrors "rosterlink/pkg/domain-errors"
	"rosterlink/pkg/platform/httputil"
	"rosterlink/pkg/requestcontext"
)

// Service defines the interface for roster enrichment.
type Service interface {
	LicenseUsers(ctx context.Context, policy identity.Policy) (*enrichment.Report, error)
	Refresh(ctx context.Context) error
}

// Handler serves the enriched license roster.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// Register registers the roster routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/license/users", h.handleLicenseUsers)
	r.Post("/license/users/refresh", h.handleRefresh)
}

// handleLicenseUsers runs (or serves from cache) the resolution plan.
// An optional policy query parameter overrides the plan's policy.
func (h *Handler) handleLicenseUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var policy identity.Policy
	if raw := r.URL.Query().Get("policy"); raw != "" {
		p, err := identity.ParsePolicy(raw)
		if err != nil {
			h.logger.WarnContext(ctx, "invalid policy parameter",
				"request_id", requestID,
				"policy", raw,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "policy must be retain-all or match-or-drop"))
			return
		}
		policy = p
	}

	report, err := h.service.LicenseUsers(ctx, policy)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to resolve license users",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Refresh(ctx); err != nil {
		h.logger.ErrorContext(ctx, "failed to refresh roster cache",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
