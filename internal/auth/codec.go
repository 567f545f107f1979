package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer = "treksistem"

	// MinSecretLen is the minimum signing secret length in bytes.
	MinSecretLen = 32
)

// Claims are the session claims embedded in a signed token. They are
// self-contained: the full grant set travels with the token, so a request can
// be authorized without a store round-trip (revocation excepted).
type Claims struct {
	Email         string      `json:"email"`
	EmailVerified bool        `json:"email_verified"`
	Name          string      `json:"name,omitempty"`
	Picture       string      `json:"picture,omitempty"`
	Grants        []RoleGrant `json:"grants,omitempty"`

	// SessionID is stable across a refresh chain; the registered ID (jti)
	// changes on every issuance and is the revocation key.
	SessionID    string `json:"sid"`
	Tier         string `json:"tier,omitempty"`
	LastActivity int64  `json:"last_activity,omitempty"`

	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with HS256. It is pure and
// stateless; the secret never appears in any token.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithCodecIssuer overrides the issuer claim.
func WithCodecIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		if strings.TrimSpace(issuer) != "" {
			c.issuer = strings.TrimSpace(issuer)
		}
	}
}

// WithCodecClock overrides the time source (tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec. The secret must be at least MinSecretLen bytes.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("%w: signing secret must be at least %d bytes", ErrInvalidInput, MinSecretLen)
	}
	c := &Codec{
		secret: secret,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issuer returns the issuer claim stamped on issued tokens.
func (c *Codec) Issuer() string { return c.issuer }

// Issue signs the claims. The caller is responsible for populating jti, sid
// and the timestamps; Issue only stamps the issuer.
func (c *Codec) Issue(claims Claims) (string, error) {
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if claims.ID == "" || claims.SessionID == "" {
		return "", fmt.Errorf("%w: token and session identifiers are required", ErrInvalidInput)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return "", fmt.Errorf("%w: issued-at and expiry are required", ErrInvalidInput)
	}
	claims.Issuer = c.issuer
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, structure and expiry. Expiry is exact to the
// second: no leeway window is granted. Failures map onto exactly one of
// ErrTokenMalformed, ErrBadSignature, ErrTokenExpired.
func (c *Codec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrBadSignature
		}
		return c.secret, nil
	},
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, classifyVerifyError(err)
	}
	if !parsed.Valid {
		return nil, ErrBadSignature
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.SessionID == "" || claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	for _, g := range claims.Grants {
		if !g.Role.Valid() {
			return nil, ErrTokenMalformed
		}
	}
	return claims, nil
}

func classifyVerifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrBadSignature
	default:
		return ErrTokenMalformed
	}
}
