// Package requester identifies the caller from the header the upstream
// gateway sets after single sign-on.
package requester

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	dErrors "rosterlink/pkg/domain-errors"
	"rosterlink/pkg/platform/httputil"
	"rosterlink/pkg/requestcontext"
)

// Header carries the caller's single-sign-on identifier.
const Header = "X-Knox-Id"

// RequestID copies chi's request ID into requestcontext so services can
// log it without importing chi. Mount after middleware.RequestID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = requestcontext.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects requests without a requester header and stores the
// trimmed value in the context.
func Require(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := strings.TrimSpace(r.Header.Get(Header))
			if id == "" {
				logger.WarnContext(ctx, "unauthorized access - missing requester header",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing "+Header+" header"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithRequester(ctx, id)))
		})
	}
}
