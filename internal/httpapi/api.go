// Package httpapi is the HTTP transport for the auth core: session issuance
// and refresh, revocation, CSRF tokens, partner grant administration and the
// operator surface. Handlers translate service outcomes into the error
// taxonomy; no security decision is made here.
package httpapi

import (
	"net/http"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
	"github.com/fx2y/treksistem-platform-sub001/internal/csrf"
	"github.com/fx2y/treksistem-platform-sub001/internal/monitor"
	"github.com/fx2y/treksistem-platform-sub001/internal/obs"
	"github.com/fx2y/treksistem-platform-sub001/internal/ratelimit"
)

// API is the HTTP layer.
type API struct {
	mux *http.ServeMux

	guard    *auth.Guard
	codec    *auth.Codec
	sessions *auth.Service
	grants   auth.GrantStore
	verifier auth.IdentityVerifier
	csrf     *csrf.Guard
	limiter  *ratelimit.Limiter
	journal  *audit.Journal
	monitor  *monitor.Service

	origins []string
	version string
}

// Deps carries the collaborators the API wires together.
type Deps struct {
	Guard    *auth.Guard
	Codec    *auth.Codec
	Sessions *auth.Service
	Grants   auth.GrantStore
	Verifier auth.IdentityVerifier
	CSRF     *csrf.Guard
	Limiter  *ratelimit.Limiter
	Journal  *audit.Journal
	Monitor  *monitor.Service

	AllowedOrigins []string
	Version        string
}

// New constructs the API and registers its routes.
func New(deps Deps) *API {
	a := &API{
		mux:      http.NewServeMux(),
		guard:    deps.Guard,
		codec:    deps.Codec,
		sessions: deps.Sessions,
		grants:   deps.Grants,
		verifier: deps.Verifier,
		csrf:     deps.CSRF,
		limiter:  deps.Limiter,
		journal:  deps.Journal,
		monitor:  deps.Monitor,
		origins:  deps.AllowedOrigins,
		version:  deps.Version,
	}

	// session lifecycle
	a.mux.HandleFunc("/auth/google/callback", a.handleGoogleCallback)
	a.mux.HandleFunc("/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/auth/revoke", a.handleRevoke)
	a.mux.HandleFunc("/auth/csrf", a.handleCSRFToken)
	a.mux.HandleFunc("/auth/health", a.handleAuthHealth)

	// authenticated surface
	a.mux.HandleFunc("/protected/auth/me", a.handleMe)
	a.mux.HandleFunc("/protected/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/protected/partners/", a.handlePartners)

	// operator surface
	a.mux.HandleFunc("/protected/system/health", a.handleSystemHealth)
	a.mux.HandleFunc("/protected/system/metrics", a.handleSystemMetrics)
	a.mux.HandleFunc("/protected/system/cleanup", a.handleSystemCleanup)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler. Order matters: the rate
// limiter runs before token verification so floods never reach the crypto,
// and the CSRF check runs before the auth guard attaches claims.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = a.csrfProtect(h)
	h = a.rateLimit(h)
	h = LoggingJSON(h)
	h = a.cors(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
