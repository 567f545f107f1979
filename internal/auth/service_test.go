package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAuthenticateCreatesIdentityAndSession(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ledger := newMemLedger()
	svc, identities, grants := newTestService(t, now, ledger)

	if err := grants.Grant(context.Background(), "google-oauth2|u1", RoleGrant{Role: RoleDriver, GrantedAt: now}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	session, err := svc.Authenticate(context.Background(), verifiedIdentity(), DeviceContext{Fingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if session.Token == "" || session.Claims.ID == "" || session.Claims.SessionID == "" {
		t.Fatalf("incomplete session: %+v", session.Claims)
	}
	if got := session.ExpiresAt(); !got.Equal(now.Add(4 * time.Hour)) {
		t.Fatalf("expected 4h expiry, got %v", got)
	}
	if len(session.Claims.Grants) != 1 || session.Claims.Grants[0].Role != RoleDriver {
		t.Fatalf("grants missing from claims: %+v", session.Claims.Grants)
	}
	if _, err := identities.Find(context.Background(), "google-oauth2|u1"); err != nil {
		t.Fatalf("identity was not created: %v", err)
	}
}

func TestAuthenticateRejectsUnverifiedEmail(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now, newMemLedger())

	ext := verifiedIdentity()
	ext.EmailVerified = false
	if _, err := svc.Authenticate(context.Background(), ext, DeviceContext{}); !errors.Is(err, ErrIdentityUnverified) {
		t.Fatalf("expected ErrIdentityUnverified, got %v", err)
	}
}

func TestRefreshRotatesTokenIDKeepsSessionID(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ledger := newMemLedger()
	svc, _, _ := newTestService(t, now, ledger)

	first, err := svc.Authenticate(context.Background(), verifiedIdentity(), DeviceContext{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	second, err := svc.Refresh(context.Background(), first.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if second.Claims.ID == first.Claims.ID {
		t.Fatal("refresh must mint a new token id")
	}
	if second.Claims.SessionID != first.Claims.SessionID {
		t.Fatal("refresh must keep the session id")
	}

	// Default policy: the prior token stays valid until its own expiry.
	revoked, err := ledger.IsRevoked(context.Background(), first.Claims.ID)
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Fatal("prior token must not be revoked when the policy is off")
	}
}

func TestRefreshWithRevokeOnRefreshPolicy(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ledger := newMemLedger()
	svc, _, _ := newTestService(t, now, ledger, WithRevokeOnRefresh(true))

	first, err := svc.Authenticate(context.Background(), verifiedIdentity(), DeviceContext{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), first.Token); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	revoked, err := ledger.IsRevoked(context.Background(), first.Claims.ID)
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("prior token must be revoked when the policy is on")
	}
}

func TestRefreshReReadsGrants(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ledger := newMemLedger()
	svc, _, grants := newTestService(t, now, ledger)

	subject := verifiedIdentity().SubjectID
	if err := grants.Grant(context.Background(), subject, RoleGrant{Role: RolePartnerAdmin, ContextID: "partner_abc"}); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	session, err := svc.Authenticate(context.Background(), verifiedIdentity(), DeviceContext{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !session.Claims.HasRole(RolePartnerAdmin) {
		t.Fatal("expected partner admin grant in first session")
	}

	// Revoking the grant mid-session takes effect on the next refresh.
	if err := grants.RevokeGrant(context.Background(), subject, RolePartnerAdmin, "partner_abc"); err != nil {
		t.Fatalf("RevokeGrant: %v", err)
	}
	refreshed, err := svc.Refresh(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.Claims.HasRole(RolePartnerAdmin) {
		t.Fatal("revoked grant must not survive refresh")
	}
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ledger := newMemLedger()
	svc, _, _ := newTestService(t, now, ledger)

	session, err := svc.Authenticate(context.Background(), verifiedIdentity(), DeviceContext{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := svc.RevokeToken(context.Background(), session.Token, ReasonLogout); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), session.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestRefreshFailsClosedOnLedgerError(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ledger := newMemLedger()
	svc, _, _ := newTestService(t, now, ledger)

	session, err := svc.Authenticate(context.Background(), verifiedIdentity(), DeviceContext{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	ledger.failing = true
	if _, err := svc.Refresh(context.Background(), session.Token); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
}

func TestRevokeIsIdempotentAndIndependentOfVerify(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ledger := newMemLedger()
	svc, _, _ := newTestService(t, now, ledger)

	session, err := svc.Authenticate(context.Background(), verifiedIdentity(), DeviceContext{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.RevokeToken(context.Background(), session.Token, ReasonLogout); err != nil {
			t.Fatalf("RevokeToken #%d: %v", i+1, err)
		}
	}

	revoked, err := ledger.IsRevoked(context.Background(), session.Claims.ID)
	if err != nil || !revoked {
		t.Fatalf("expected revoked=true, got %v %v", revoked, err)
	}

	// Signature validity and revocation are independent dimensions.
	codec := newTestCodec(t, now)
	if _, err := codec.Verify(session.Token); err != nil {
		t.Fatalf("revoked token should still verify cryptographically: %v", err)
	}
}

func TestRevokeExpiredTokenIsNoOp(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ledger := newMemLedger()
	svc, _, _ := newTestService(t, now, ledger)

	session, err := svc.Authenticate(context.Background(), verifiedIdentity(), DeviceContext{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	later := now.Add(5 * time.Hour)
	lateCodec := newTestCodec(t, later)
	lateSvc, err := NewService(lateCodec, ledger, newMemIdentities(), newMemGrants(), WithClock(testClock(later)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := lateSvc.RevokeToken(context.Background(), session.Token, ReasonLogout); err != nil {
		t.Fatalf("revoking an expired token should be a no-op, got %v", err)
	}
	revoked, _ := ledger.IsRevoked(context.Background(), session.Claims.ID)
	if revoked {
		t.Fatal("expired token should not be added to the ledger")
	}
}

func TestCleanupExpiredRevocations(t *testing.T) {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ledger := newMemLedger()
	svc, _, _ := newTestService(t, now, ledger)

	if err := svc.RevokeWithExpiry(context.Background(), "tok-live", "u1", now.Add(time.Hour), ReasonLogout); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := svc.RevokeWithExpiry(context.Background(), "tok-dead", "u1", now.Add(-time.Minute), ReasonLogout); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	removed, err := svc.CleanupExpiredRevocations(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpiredRevocations: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed entry, got %d", removed)
	}

	// The live entry survives: cleanup never removes before recorded expiry.
	revoked, err := ledger.IsRevoked(context.Background(), "tok-live")
	if err != nil || !revoked {
		t.Fatalf("live entry must survive cleanup: %v %v", revoked, err)
	}
}
