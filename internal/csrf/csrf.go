// Package csrf issues and validates per-session anti-forgery tokens for
// state-changing requests. Tokens are stateless: a random nonce and expiry
// bound to the session id by an HMAC, so validation needs no store round-trip.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// MinSecretLen is the minimum HMAC secret length in bytes. There is no
	// default secret: configuration without one fails at startup.
	MinSecretLen = 32

	// DefaultTTL is the token lifetime, independent of (and longer than)
	// the session token's own expiry.
	DefaultTTL = 24 * time.Hour

	nonceLen = 16 // 128 bits of entropy
)

var (
	ErrTokenInvalid = errors.New("csrf: token invalid")
	ErrTokenExpired = errors.New("csrf: token expired")
)

// Guard issues and validates anti-forgery tokens.
type Guard struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(g *Guard) {
		if fn != nil {
			g.now = fn
		}
	}
}

// New constructs a Guard. The secret is required and never defaulted.
func New(secret []byte, opts ...Option) (*Guard, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("csrf: secret must be at least %d bytes", MinSecretLen)
	}
	g := &Guard{secret: secret, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// IssueToken mints a token bound to the session id. Format:
// base64url(nonce || exp-unix) "." base64url(HMAC(secret, sid || payload)).
func (g *Guard) IssueToken(sessionID string) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, errors.New("csrf: session id is required")
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", time.Time{}, fmt.Errorf("csrf: generate nonce: %w", err)
	}
	expiresAt := g.now().Add(g.ttl).UTC().Truncate(time.Second)

	payload := make([]byte, nonceLen+8)
	copy(payload, nonce)
	binary.BigEndian.PutUint64(payload[nonceLen:], uint64(expiresAt.Unix()))

	token := base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(g.sign(sessionID, payload))
	return token, expiresAt, nil
}

// Validate checks that the presented token was issued for the session and
// has not expired.
func (g *Guard) Validate(sessionID, token string) error {
	if sessionID == "" || token == "" {
		return ErrTokenInvalid
	}
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return ErrTokenInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(payload) != nonceLen+8 {
		return ErrTokenInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ErrTokenInvalid
	}
	if subtle.ConstantTimeCompare(sig, g.sign(sessionID, payload)) != 1 {
		return ErrTokenInvalid
	}
	expiresAt := time.Unix(int64(binary.BigEndian.Uint64(payload[nonceLen:])), 0)
	if g.now().After(expiresAt) {
		return ErrTokenExpired
	}
	return nil
}

func (g *Guard) sign(sessionID string, payload []byte) []byte {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(sessionID))
	mac.Write([]byte{0})
	mac.Write(payload)
	return mac.Sum(nil)
}

// SafeMethod reports whether the HTTP method is exempt from CSRF checks.
func SafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
