package employee

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rosterlink/internal/identity"
	"rosterlink/pkg/platform/httputil"
	"rosterlink/pkg/platform/middleware/requester"
	"rosterlink/pkg/requestcontext"
)

// Looker defines the interface for the employee lookup.
type Looker interface {
	Lookup(ctx context.Context, requester string) (identity.Row, error)
}

type Handler struct {
	logger  *slog.Logger
	service Looker
}

func NewHandler(service Looker, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts GET /user behind the requester header check.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requester.Require(h.logger))
		r.Get("/user", h.handleCurrentUser)
	})
}

func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	row, err := h.service.Lookup(ctx, requestcontext.Requester(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, row)
}
