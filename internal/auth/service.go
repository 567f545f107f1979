package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTTL bounds session token lifetime.
const DefaultSessionTTL = 4 * time.Hour

const (
	// Revocation reasons recorded in the ledger.
	ReasonLogout  = "logout"
	ReasonRotated = "rotated"
)

// Session is the result of authentication or refresh: the signed token plus
// the claims embedded in it and the stored identity.
type Session struct {
	Token    string
	Claims   Claims
	Identity Identity
}

// ExpiresAt returns the token expiry.
func (s Session) ExpiresAt() time.Time {
	if s.Claims.ExpiresAt == nil {
		return time.Time{}
	}
	return s.Claims.ExpiresAt.Time
}

// Service issues, refreshes and revokes session tokens. All durable state
// (identities, grants, revocations) lives behind injected stores shared by
// every execution context; the service itself keeps nothing between calls.
type Service struct {
	codec      *Codec
	ledger     RevocationLedger
	identities IdentityStore
	grants     GrantStore

	now             func() time.Time
	sessionTTL      time.Duration
	revokeOnRefresh bool
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithSessionTTL configures token lifetime; it is capped at DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 || ttl > DefaultSessionTTL {
			return fmt.Errorf("%w: session ttl must be within (0, %s]", ErrInvalidInput, DefaultSessionTTL)
		}
		s.sessionTTL = ttl
		return nil
	}
}

// WithRevokeOnRefresh controls whether a refresh revokes the prior token id.
// Off by default: a session id may back several concurrent devices, and
// revoking on rotation would cut the others off.
func WithRevokeOnRefresh(enabled bool) ServiceOption {
	return func(s *Service) error {
		s.revokeOnRefresh = enabled
		return nil
	}
}

// NewService constructs a Service.
func NewService(codec *Codec, ledger RevocationLedger, identities IdentityStore, grants GrantStore, opts ...ServiceOption) (*Service, error) {
	if codec == nil || ledger == nil || identities == nil || grants == nil {
		return nil, errors.New("auth: service requires codec, ledger, identity and grant stores")
	}
	svc := &Service{
		codec:      codec,
		ledger:     ledger,
		identities: identities,
		grants:     grants,
		now:        time.Now,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Authenticate turns a verified external identity into a fresh session.
// The identity is created on first login and refreshed afterwards; role
// grants are read fresh from the store.
func (s *Service) Authenticate(ctx context.Context, ext ExternalIdentity, _ DeviceContext) (Session, error) {
	if ext.SubjectID == "" || ext.Email == "" {
		return Session{}, fmt.Errorf("%w: external identity is incomplete", ErrInvalidInput)
	}
	if !ext.EmailVerified {
		return Session{}, ErrIdentityUnverified
	}

	identity, err := s.identities.Upsert(ctx, Identity{
		SubjectID:     ext.SubjectID,
		Email:         ext.Email,
		EmailVerified: true,
		Name:          ext.Name,
		Picture:       ext.Picture,
	})
	if err != nil {
		return Session{}, fmt.Errorf("upsert identity: %w", err)
	}

	grants, err := s.grants.GrantsFor(ctx, identity.SubjectID)
	if err != nil {
		return Session{}, fmt.Errorf("load grants: %w", err)
	}

	return s.mint(identity, grants, uuid.NewString())
}

// Refresh verifies the existing token, re-reads the current grant set (so a
// role revoked mid-session takes effect now, not at original expiry) and
// issues a new token id under the same session id. The prior token id is
// revoked only when the revoke-on-refresh policy is enabled.
func (s *Service) Refresh(ctx context.Context, token string) (Session, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	if revoked {
		return Session{}, ErrTokenRevoked
	}

	identity, err := s.identities.Find(ctx, claims.Subject)
	if err != nil {
		return Session{}, fmt.Errorf("load identity: %w", err)
	}
	grants, err := s.grants.GrantsFor(ctx, identity.SubjectID)
	if err != nil {
		return Session{}, fmt.Errorf("load grants: %w", err)
	}

	session, err := s.mint(identity, grants, claims.SessionID)
	if err != nil {
		return Session{}, err
	}

	if s.revokeOnRefresh {
		if err := s.Revoke(ctx, claims.ID, claims.Subject, ReasonRotated); err != nil {
			return Session{}, err
		}
	}
	return session, nil
}

// Revoke inserts a revocation entry for the token id. The entry carries the
// original expiry when the caller knows it so cleanup can collect it; a zero
// expiry falls back to now+TTL, the longest the token could still live.
func (s *Service) Revoke(ctx context.Context, tokenID, subjectID, reason string) error {
	return s.RevokeWithExpiry(ctx, tokenID, subjectID, time.Time{}, reason)
}

// RevokeWithExpiry is Revoke with an explicit token expiry.
func (s *Service) RevokeWithExpiry(ctx context.Context, tokenID, subjectID string, expiresAt time.Time, reason string) error {
	if tokenID == "" {
		return fmt.Errorf("%w: token id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.sessionTTL)
	}
	err := s.ledger.Add(ctx, RevocationEntry{
		TokenID:   tokenID,
		SubjectID: subjectID,
		ExpiresAt: expiresAt,
		RevokedAt: now,
		Reason:    reason,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	return nil
}

// RevokeToken verifies the token just enough to locate its identifiers and
// revokes it. Expired tokens are accepted here: revoking an expired token is
// a harmless no-op rather than an error the client must handle.
func (s *Service) RevokeToken(ctx context.Context, token, reason string) error {
	claims, err := s.codec.Verify(token)
	if errors.Is(err, ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.RevokeWithExpiry(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time, reason)
}

// CleanupExpiredRevocations removes ledger entries whose expiry has passed.
// Operator-triggered: there is no background scheduler in this execution
// model.
func (s *Service) CleanupExpiredRevocations(ctx context.Context) (int64, error) {
	return s.ledger.CleanupExpired(ctx, s.now().UTC())
}

func (s *Service) mint(identity Identity, grants []RoleGrant, sessionID string) (Session, error) {
	now := s.now().UTC()
	claims := Claims{
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Name:          identity.Name,
		Picture:       identity.Picture,
		Grants:        grants,
		SessionID:     sessionID,
		Tier:          tierFor(grants),
		LastActivity:  now.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
			ID:        uuid.NewString(),
		},
	}
	token, err := s.codec.Issue(claims)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Claims: claims, Identity: identity}, nil
}

func tierFor(grants []RoleGrant) string {
	for _, g := range grants {
		if g.Role == RoleMasterAdmin {
			return "admin"
		}
	}
	if len(grants) > 0 {
		return "member"
	}
	return "basic"
}
