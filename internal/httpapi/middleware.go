package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
	"github.com/fx2y/treksistem-platform-sub001/internal/csrf"
	"github.com/fx2y/treksistem-platform-sub001/internal/obs"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

// RequestID assigns every request an identifier, echoes it in the response
// and stores it in the context for log and error correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := context.WithValue(r.Context(), requestIDKey{}, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// LoggingJSON emits one structured JSON line per request.
func LoggingJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)

		obs.LogRequest(map[string]any{
			"ts":          time.Now().UTC().Format(time.RFC3339Nano),
			"level":       "info",
			"msg":         "request_complete",
			"request_id":  RequestIDFromContext(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   clientIP(r),
			"user_agent":  r.UserAgent(),
		})
	})
}

// SecurityHeaders applies response hardening to every request.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "0")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// cors allows the configured origins only. Preflights are answered here; the
// allowed headers cover the bearer token, the CSRF token and the device
// fingerprint the clients send.
func (a *API) cors(next http.Handler) http.Handler {
	const (
		allowedMethods = "GET,POST,OPTIONS"
		allowedHeaders = "Content-Type,Authorization,X-CSRF-Token,X-Fingerprint,X-Request-ID"
	)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && a.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
			w.Header().Set("Access-Control-Max-Age", "600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) originAllowed(origin string) bool {
	// with no configured origins the service is in development mode and
	// admits local frontends only; a configured list is exact
	if len(a.origins) == 0 {
		return strings.HasPrefix(origin, "http://localhost:") ||
			strings.HasPrefix(origin, "http://127.0.0.1:")
	}
	for _, allowed := range a.origins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// rateLimit enforces the per-IP window against the shared counter store.
// Authentication endpoints get the stricter limit. The per-email dimension
// needs a verified email and is checked in the handlers instead.
func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || exemptFromRateLimit(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		decision, err := a.limiter.AllowRequest(r.Context(), ip, "", isAuthEndpoint(r.URL.Path))
		if err != nil {
			obs.LogEvent("error", "rate limit store unreachable", map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"error":      err.Error(),
			})
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int64(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			obs.IncRateLimitRejection()
			a.journal.Record(r.Context(), audit.Event{
				Type:      audit.EventRateLimitHit,
				Severity:  audit.SeverityWarning,
				ClientIP:  ip,
				UserAgent: r.UserAgent(),
				Endpoint:  r.URL.Path,
				Detail:    map[string]any{"dimension": string(decision.Dimension)},
			})
			writeError(w, r, http.StatusTooManyRequests, codeRateLimitError, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// csrfProtect validates the anti-forgery token on unsafe methods. Login,
// refresh and revoke are exempt: the caller holds no session token yet, or
// holds only the credential being invalidated. The session id comes from the
// bearer token; when the bearer is absent or unreadable the check defers to
// the auth guard, which rejects the request on its own.
func (a *API) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if csrf.SafeMethod(r.Method) || exemptFromCSRF(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.codec.Verify(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if err := a.csrf.Validate(claims.SessionID, r.Header.Get("X-CSRF-Token")); err != nil {
			a.journal.Record(r.Context(), audit.Event{
				Type:      audit.EventCSRFRejected,
				Severity:  audit.SeverityWarning,
				SubjectID: claims.Subject,
				ClientIP:  clientIP(r),
				UserAgent: r.UserAgent(),
				Endpoint:  r.URL.Path,
			})
			writeError(w, r, http.StatusForbidden, codeCSRFValidationFailed, "csrf validation failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAuthEndpoint(path string) bool {
	switch path {
	case "/auth/google/callback", "/auth/refresh", "/auth/revoke":
		return true
	}
	return false
}

func exemptFromCSRF(path string) bool {
	return isAuthEndpoint(path)
}

func exemptFromRateLimit(path string) bool {
	switch path {
	case "/metrics", "/auth/health":
		return true
	}
	return false
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For support (first IP)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
