package httpapi

import (
	"net/http"
	"strings"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
	"github.com/fx2y/treksistem-platform-sub001/internal/obs"
)

const protectedPrefix = "/protected/"

// withAuth runs the full per-request check (bearer extraction, signature and
// expiry verification, revocation lookup) on every protected route. Nothing
// authenticated is carried between requests.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !requiresAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		outcome := a.guard.Check(r.Context(), r.Header.Get("Authorization"))
		if !outcome.OK {
			obs.ObserveAuthOutcome("rejected")
			// an unreachable ledger is an infrastructure failure, not a bad
			// credential
			severity := audit.SeverityWarning
			if outcome.Reason == auth.ReasonInternalError {
				severity = audit.SeverityError
			}
			a.journal.Record(r.Context(), audit.Event{
				Type:      audit.EventAuthFailure,
				Severity:  severity,
				ClientIP:  clientIP(r),
				UserAgent: r.UserAgent(),
				Endpoint:  r.URL.Path,
				Detail:    map[string]any{"reason": string(outcome.Reason)},
			})
			writeGuardRejection(w, r, outcome)
			return
		}

		obs.ObserveAuthOutcome("authenticated")
		ctx := auth.ContextWithClaims(r.Context(), outcome.Claims)
		ctx = auth.ContextWithToken(ctx, outcome.Token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requiresAuth(path string) bool {
	return strings.HasPrefix(path, protectedPrefix) || path == "/auth/csrf"
}

func writeGuardRejection(w http.ResponseWriter, r *http.Request, outcome auth.Outcome) {
	switch outcome.Reason {
	case auth.ReasonAuthenticationRequired:
		writeError(w, r, http.StatusUnauthorized, codeAuthenticationRequired, "authentication required")
	case auth.ReasonInvalidToken:
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid or expired token")
	case auth.ReasonTokenRevoked:
		writeError(w, r, http.StatusUnauthorized, codeTokenRevoked, "token has been revoked")
	default:
		writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "authentication error")
	}
}

// requireRole enforces a role requirement on an already-authenticated
// request. Returns the claims on success and writes the rejection itself on
// failure.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, role auth.Role) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthenticationRequired, "authentication required")
		return nil, false
	}
	if !claims.HasRole(role) {
		a.journal.Record(r.Context(), audit.Event{
			Type:      audit.EventAccessDenied,
			Severity:  audit.SeverityWarning,
			SubjectID: claims.Subject,
			ClientIP:  clientIP(r),
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Detail:    map[string]any{"required_role": string(role)},
		})
		writeError(w, r, http.StatusForbidden, codeInsufficientPermissions, "insufficient permissions")
		return nil, false
	}
	return claims, true
}

// requireContext enforces tenant scoping: the caller must hold a grant bound
// to the given partner context. Master admins pass unconditionally.
func (a *API) requireContext(w http.ResponseWriter, r *http.Request, contextID string) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthenticationRequired, "authentication required")
		return nil, false
	}
	if contextID == "" {
		writeError(w, r, http.StatusForbidden, codePartnerContextRequired, "partner context required")
		return nil, false
	}
	if !claims.HasContext(contextID) {
		a.journal.Record(r.Context(), audit.Event{
			Type:      audit.EventAccessDenied,
			Severity:  audit.SeverityWarning,
			SubjectID: claims.Subject,
			ClientIP:  clientIP(r),
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Detail:    map[string]any{"context_id": contextID},
		})
		writeError(w, r, http.StatusForbidden, codeResourceAccessDenied, "access to this resource is denied")
		return nil, false
	}
	return claims, true
}
