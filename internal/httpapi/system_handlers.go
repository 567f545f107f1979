package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
)

func (a *API) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := auth.ClaimsFromContext(r.Context()); !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthenticationRequired, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, a.monitor.Health(r.Context()))
}

func (a *API) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	// any authenticated caller may read the projection; only cleanup is
	// restricted to the master role
	if _, ok := auth.ClaimsFromContext(r.Context()); !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthenticationRequired, "authentication required")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Type:      audit.EventType(strings.TrimSpace(q.Get("type"))),
		Severity:  audit.Severity(strings.TrimSpace(q.Get("severity"))),
		SubjectID: strings.TrimSpace(q.Get("subject_id")),
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	events, err := a.monitor.RecentMetrics(r.Context(), filter, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "metrics query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (a *API) handleSystemCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := a.requireRole(w, r, auth.RoleMasterAdmin)
	if !ok {
		return
	}

	results, err := a.monitor.Cleanup(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalServerError, "cleanup failed")
		return
	}

	a.journal.Record(r.Context(), audit.Event{
		Type:      audit.EventCleanupRun,
		Severity:  audit.SeverityInfo,
		SubjectID: claims.Subject,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Detail:    map[string]any{"removed": results},
	})
	writeJSON(w, http.StatusOK, map[string]any{"removed": results})
}
