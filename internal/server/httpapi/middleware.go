package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/server/auth"
	"github.com/quizforge/identity/internal/server/services"
)

type contextKey string

const claimsContextKey contextKey = "access-claims"

// extractToken pulls the access token from the HttpOnly cookie or, failing
// that, the Authorization bearer header.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(common.AccessTokenCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// clientInfo collects the transport metadata the services record with
// sessions and login attempts.
func clientInfo(r *http.Request) services.ClientInfo {
	info := services.ClientInfo{}

	if ip := clientIP(r); ip != "" {
		info.IPAddress = &ip
	}
	if ua := r.UserAgent(); ua != "" {
		info.UserAgent = &ua
	}
	if fp := r.Header.Get(common.DeviceFingerprintHeader); fp != "" {
		info.DeviceFingerprint = &fp
	}
	return info
}

// clientIP trusts the leftmost X-Forwarded-For entry when present (the
// reverse proxy in front of this service sets it) and falls back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requireAuth authenticates the request and stores the access claims in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, common.ErrorInvalidToken)
			return
		}

		claims, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission gates a route group on one permission from the access
// token's snapshot. It must run after requireAuth.
func (s *Server) requirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFrom(r.Context())
			if claims == nil {
				writeError(w, common.ErrorInvalidToken)
				return
			}
			for _, p := range claims.Permissions {
				if p == permission {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, common.ErrorPermissionDenied)
		})
	}
}

func claimsFrom(ctx context.Context) *auth.AccessClaims {
	claims, _ := ctx.Value(claimsContextKey).(*auth.AccessClaims)
	return claims
}
