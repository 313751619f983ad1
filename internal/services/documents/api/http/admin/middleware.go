package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/louisbranch/docwatch/internal/platform/adminauth"
	apperrors "github.com/louisbranch/docwatch/internal/platform/errors"
)

type claimsKey struct{}

// ClaimsFromContext returns the verified admin claims of the request.
func ClaimsFromContext(ctx context.Context) (adminauth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(adminauth.Claims)
	return claims, ok
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.verifier == nil {
			h.writeError(w, r, apperrors.New(apperrors.CodeUnauthenticated, "admin authentication is not configured"))
			return
		}
		scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			w.Header().Set("WWW-Authenticate", `Bearer realm="docwatch-admin"`)
			h.writeError(w, r, apperrors.New(apperrors.CodeUnauthenticated, "bearer token required"))
			return
		}
		claims, err := h.verifier.Verify(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="docwatch-admin", error="invalid_token"`)
			h.writeError(w, r, err)
			return
		}
		h.logger.WithField("admin", claims.Subject).Debug("admin authenticated")
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}
