package middleware

import (
	"net/http"
	"strings"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/service"
)

// TokenVerifier validates access tokens. *service.TokenService implements it.
type TokenVerifier interface {
	Verify(token string) (*service.Claims, error)
}

func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	// Browsers cannot set headers on a WebSocket upgrade.
	return r.URL.Query().Get("token")
}

// BearerAuth rejects requests without a valid access token with 401 and puts
// the user id and account type into the request context.
func BearerAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeFailure(w, http.StatusUnauthorized, "Authentication required", "UNAUTHORIZED")
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				logger.Debugf("auth %s %s: rejected token %s", r.Method, r.URL.Path, MaskToken(token))
				writeFailure(w, http.StatusUnauthorized, "Session expired, please sign in again", "TOKEN_INVALID")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.Subject, claims.AccountType)))
		})
	}
}

// RequireAdmin allows only admin/driver accounts.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetAccountType(r.Context()) != model.AccountAdminDriver {
			writeFailure(w, http.StatusForbidden, "Admin access required", "FORBIDDEN")
			return
		}
		next.ServeHTTP(w, r)
	})
}
