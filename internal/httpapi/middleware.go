package httpapi

import (
	"net/http"
	"strings"

	auth "github.com/geosentry/citation-engine/internal/auth"
	"go.uber.org/zap"
)

// RequireAuth wraps next with a bearer-token check against the credential
// verifier (§1 non-goal: authentication is an external collaborator here,
// exercised only through auth.Service's public contract).
func RequireAuth(svc *auth.Service, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}

		if _, err := svc.Verify(token); err != nil {
			logger.Debug("auth: token rejected", zap.Error(err))
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
