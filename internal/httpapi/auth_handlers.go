package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
	"github.com/fx2y/treksistem-platform-sub001/internal/monitor"
	"github.com/fx2y/treksistem-platform-sub001/internal/obs"
	"github.com/fx2y/treksistem-platform-sub001/internal/ratelimit"
)

type callbackRequest struct {
	Token       string `json:"token"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

type sessionInfo struct {
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
}

type loginResponse struct {
	JWT     string           `json:"jwt"`
	User    auth.Identity    `json:"user"`
	Session sessionInfo      `json:"session"`
	Grants  []auth.RoleGrant `json:"grants"`
}

type refreshResponse struct {
	JWT       string    `json:"jwt"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req callbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "token is required")
		return
	}
	// header wins over body for the device signal; recorded, never enforced
	fingerprint := strings.TrimSpace(r.Header.Get("X-Fingerprint"))
	if fingerprint == "" {
		fingerprint = req.Fingerprint
	}

	ext, err := a.verifier.Verify(r.Context(), req.Token)
	if err != nil {
		a.recordAuthFailure(r, "", "credential rejected")
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "credential verification failed")
		return
	}

	// Per-account limit, checked once the claimed email is verified. This is
	// the dimension that catches distributed credential stuffing.
	if !a.allowEmail(w, r, ext.Email) {
		return
	}

	session, err := a.sessions.Authenticate(r.Context(), ext, auth.DeviceContext{
		Fingerprint: fingerprint,
		Timezone:    req.Timezone,
		ClientIP:    clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrIdentityUnverified):
			a.recordAuthFailure(r, ext.Email, "email not verified")
			writeError(w, r, http.StatusForbidden, codeIdentityUnverified, "email address is not verified")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "incomplete identity claim")
		default:
			writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "authentication failed")
		}
		return
	}

	obs.ObserveAuthOutcome("login")
	a.journal.Record(r.Context(), audit.Event{
		Type:      audit.EventAuthSuccess,
		Severity:  audit.SeverityInfo,
		SubjectID: session.Identity.SubjectID,
		Email:     session.Identity.Email,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Detail:    map[string]any{"session_id": session.Claims.SessionID},
	})

	writeJSON(w, http.StatusOK, loginResponse{
		JWT:  session.Token,
		User: session.Identity,
		Session: sessionInfo{
			ExpiresAt: session.ExpiresAt(),
			SessionID: session.Claims.SessionID,
		},
		Grants: session.Claims.Grants,
	})
}

type refreshRequest struct {
	Token string `json:"token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// the token to rotate comes in the body; the Authorization header is
	// accepted as a fallback for header-only clients
	authorization := r.Header.Get("Authorization")
	if r.Body != nil && r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.Token) != "" {
			authorization = "Bearer " + strings.TrimSpace(req.Token)
		}
	}

	outcome := a.guard.Check(r.Context(), authorization)
	if !outcome.OK {
		a.recordAuthFailure(r, "", string(outcome.Reason))
		writeGuardRejection(w, r, outcome)
		return
	}

	if !a.allowEmail(w, r, outcome.Claims.Email) {
		return
	}

	session, err := a.sessions.Refresh(r.Context(), outcome.Token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenRevoked):
			writeError(w, r, http.StatusUnauthorized, codeTokenRevoked, "token has been revoked")
		case errors.Is(err, auth.ErrLedgerUnavailable):
			writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "refresh failed")
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "unknown identity")
		default:
			writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid or expired token")
		}
		return
	}

	obs.ObserveAuthOutcome("refresh")
	writeJSON(w, http.StatusOK, refreshResponse{
		JWT:       session.Token,
		ExpiresAt: session.ExpiresAt(),
	})
}

type revokeRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason,omitempty"`
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "token is required")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = auth.ReasonLogout
	}

	if err := a.sessions.RevokeToken(r.Context(), token, reason); err != nil {
		switch {
		case errors.Is(err, auth.ErrLedgerUnavailable):
			writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "revocation failed")
		default:
			writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid token")
		}
		return
	}

	obs.IncTokenRevocation()
	a.journal.Record(r.Context(), audit.Event{
		Type:      audit.EventTokenRevoked,
		Severity:  audit.SeverityInfo,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Detail:    map[string]any{"reason": reason},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthenticationRequired, "authentication required")
		return
	}

	token, expiresAt, err := a.csrf.IssueToken(claims.SessionID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "csrf token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": token,
		"expires_at": expiresAt,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthenticationRequired, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject_id":   claims.Subject,
		"email":        claims.Email,
		"name":         claims.Name,
		"picture":      claims.Picture,
		"grants":       claims.Grants,
		"session_id":   claims.SessionID,
		"tier":         claims.Tier,
		"expires_at":   claims.ExpiresAt.Time,
		"master_admin": claims.IsMasterAdmin(),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthenticationRequired, "authentication required")
		return
	}
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "logout failed")
		return
	}

	if err := a.sessions.RevokeToken(r.Context(), token, auth.ReasonLogout); err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "logout failed")
		return
	}

	obs.IncTokenRevocation()
	a.journal.Record(r.Context(), audit.Event{
		Type:      audit.EventTokenRevoked,
		Severity:  audit.SeverityInfo,
		SubjectID: claims.Subject,
		Email:     claims.Email,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Detail:    map[string]any{"reason": auth.ReasonLogout},
	})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (a *API) handleAuthHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	report := a.monitor.Health(r.Context())
	code := http.StatusOK
	if report.Status == monitor.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"service":    "auth-api",
		"version":    a.version,
		"status":     report.Status,
		"checks":     report.Checks,
		"checked_at": report.CheckedAt,
	})
}

// allowEmail enforces the per-account window on authentication endpoints and
// writes the 429 itself on rejection.
func (a *API) allowEmail(w http.ResponseWriter, r *http.Request, email string) bool {
	if email == "" {
		return true
	}
	decision, err := a.limiter.Allow(r.Context(), ratelimit.DimensionEmail, email, true)
	if err != nil {
		obs.LogEvent("error", "rate limit store unreachable", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
	}
	if decision.Allowed {
		return true
	}

	retryAfter := int64(decision.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	obs.IncRateLimitRejection()
	a.journal.Record(r.Context(), audit.Event{
		Type:      audit.EventRateLimitHit,
		Severity:  audit.SeverityWarning,
		Email:     email,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Detail:    map[string]any{"dimension": string(ratelimit.DimensionEmail)},
	})
	writeError(w, r, http.StatusTooManyRequests, codeRateLimitError, "rate limit exceeded")
	return false
}

func (a *API) recordAuthFailure(r *http.Request, email, reason string) {
	obs.ObserveAuthOutcome("rejected")
	a.journal.Record(r.Context(), audit.Event{
		Type:      audit.EventAuthFailure,
		Severity:  audit.SeverityWarning,
		Email:     email,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Detail:    map[string]any{"reason": reason},
	})
}
