package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Error taxonomy exposed to clients. Internal detail never leaks: the code
// identifies the class of failure and the message stays generic.
const (
	codeAuthenticationRequired  = "authentication_required"
	codeInvalidToken            = "invalid_token"
	codeTokenRevoked            = "token_revoked"
	codeInsufficientPermissions = "insufficient_permissions"
	codePartnerContextRequired  = "partner_context_required"
	codeResourceAccessDenied    = "resource_access_denied"
	codeRateLimitError          = "rate_limit_error"
	codeCSRFValidationFailed    = "csrf_validation_failed"
	codeIdentityUnverified      = "identity_unverified"
	codeInternalServerError     = "internal_server_error"
	codeBadRequest              = "bad_request"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
}
