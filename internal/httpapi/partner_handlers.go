package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
)

// handlePartners dispatches /protected/partners/{id}/... routes. Every route
// under a partner id is tenant-scoped: the caller needs a grant bound to that
// partner (or the unscoped master role).
func (a *API) handlePartners(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/protected/partners/")
	parts := strings.SplitN(rest, "/", 2)
	partnerID := strings.TrimSpace(parts[0])
	if partnerID == "" {
		writeError(w, r, http.StatusForbidden, codePartnerContextRequired, "partner context required")
		return
	}
	var action string
	if len(parts) == 2 {
		action = strings.Trim(parts[1], "/")
	}

	switch action {
	case "grants":
		a.handlePartnerGrants(w, r, partnerID)
	case "grants/revoke":
		a.handlePartnerGrantRevoke(w, r, partnerID)
	default:
		http.NotFound(w, r)
	}
}

type grantRequest struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
}

// handlePartnerGrants lists grants (GET) or adds one (POST) inside the
// partner context. Grant administration requires the partner admin role held
// in that same context.
func (a *API) handlePartnerGrants(w http.ResponseWriter, r *http.Request, partnerID string) {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}

	claims, ok := a.requireRole(w, r, auth.RolePartnerAdmin)
	if !ok {
		return
	}
	if _, ok := a.requireContext(w, r, partnerID); !ok {
		return
	}

	if r.Method == http.MethodGet {
		subject := strings.TrimSpace(r.URL.Query().Get("subject_id"))
		if subject == "" {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "subject_id is required")
			return
		}
		grants, err := a.grants.GrantsFor(r.Context(), subject)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "grant lookup failed")
			return
		}
		scoped := make([]auth.RoleGrant, 0, len(grants))
		for _, g := range grants {
			if g.ContextID == partnerID {
				scoped = append(scoped, g)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"subject_id": subject,
			"context_id": partnerID,
			"grants":     scoped,
		})
		return
	}

	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "unknown role")
		return
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "subject_id is required")
		return
	}
	// A partner admin can never mint global roles from inside a tenant.
	if role == auth.RoleMasterAdmin {
		writeError(w, r, http.StatusForbidden, codeInsufficientPermissions, "insufficient permissions")
		return
	}

	err = a.grants.Grant(r.Context(), req.SubjectID, auth.RoleGrant{
		Role:      role,
		ContextID: partnerID,
		GrantedBy: claims.Subject,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid grant")
			return
		}
		writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "grant failed")
		return
	}

	a.journal.Record(r.Context(), audit.Event{
		Type:      audit.EventAuthSuccess,
		Severity:  audit.SeverityInfo,
		SubjectID: claims.Subject,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Detail: map[string]any{
			"granted_role":    string(role),
			"granted_subject": req.SubjectID,
			"context_id":      partnerID,
		},
	})
	writeJSON(w, http.StatusOK, map[string]any{"granted": true})
}

// handlePartnerGrantRevoke removes a grant inside the partner context. The
// change takes effect on the subject's next token refresh, not at original
// token expiry.
func (a *API) handlePartnerGrantRevoke(w http.ResponseWriter, r *http.Request, partnerID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	claims, ok := a.requireRole(w, r, auth.RolePartnerAdmin)
	if !ok {
		return
	}
	if _, ok := a.requireContext(w, r, partnerID); !ok {
		return
	}

	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "unknown role")
		return
	}

	if err := a.grants.RevokeGrant(r.Context(), req.SubjectID, role, partnerID); err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "revoke failed")
		return
	}

	a.journal.Record(r.Context(), audit.Event{
		Type:      audit.EventAuthSuccess,
		Severity:  audit.SeverityInfo,
		SubjectID: claims.Subject,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Detail: map[string]any{
			"revoked_role":    string(role),
			"revoked_subject": req.SubjectID,
			"context_id":      partnerID,
		},
	})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}
