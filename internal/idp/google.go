// Package idp verifies external identity provider credentials. The provider
// is a black box from the auth core's perspective: it hands back a verified
// identity claim or an error, nothing else crosses the boundary.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
)

const tokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// ErrCredentialRejected covers every way the provider can refuse a
// credential. Callers treat it uniformly as an invalid token.
var ErrCredentialRejected = errors.New("idp: credential rejected")

// GoogleVerifier validates Google ID tokens against the tokeninfo endpoint
// and checks the audience against the configured OAuth client id.
type GoogleVerifier struct {
	clientID string
	client   *http.Client
	endpoint string
	now      func() time.Time
}

var _ auth.IdentityVerifier = (*GoogleVerifier)(nil)

// Option configures a GoogleVerifier.
type Option func(*GoogleVerifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *GoogleVerifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithEndpoint overrides the tokeninfo URL (tests).
func WithEndpoint(u string) Option {
	return func(v *GoogleVerifier) {
		if u != "" {
			v.endpoint = u
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(v *GoogleVerifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewGoogleVerifier constructs a verifier for the given OAuth client id.
func NewGoogleVerifier(clientID string, opts ...Option) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("idp: client id is required")
	}
	v := &GoogleVerifier{
		clientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: tokenInfoURL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

type tokenInfo struct {
	Sub           string `json:"sub"`
	Aud           string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Exp           string `json:"exp"`
}

// Verify checks the raw ID token with the provider and returns the verified
// identity claim.
func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (auth.ExternalIdentity, error) {
	if rawToken == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: empty credential", ErrCredentialRejected)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		v.endpoint+"?id_token="+url.QueryEscape(rawToken), nil)
	if err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("idp: build request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("idp: tokeninfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return auth.ExternalIdentity{}, fmt.Errorf("%w: tokeninfo status %d", ErrCredentialRejected, resp.StatusCode)
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: malformed tokeninfo response", ErrCredentialRejected)
	}

	if info.Aud != v.clientID {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: audience mismatch", ErrCredentialRejected)
	}
	if exp, err := strconv.ParseInt(info.Exp, 10, 64); err != nil || v.now().Unix() >= exp {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: credential expired", ErrCredentialRejected)
	}
	if info.Sub == "" || info.Email == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: incomplete claim", ErrCredentialRejected)
	}

	return auth.ExternalIdentity{
		SubjectID:     info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified == "true",
		Name:          info.Name,
		Picture:       info.Picture,
	}, nil
}
