package auth

import "errors"

var (
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrNotFound     = errors.New("auth: not found")

	// Token verification failures. Verify never panics on garbage input;
	// it returns exactly one of these.
	ErrTokenMalformed = errors.New("auth: token malformed")
	ErrBadSignature   = errors.New("auth: bad token signature")
	ErrTokenExpired   = errors.New("auth: token expired")

	// ErrTokenRevoked indicates a signature-valid token whose identifier is
	// present in the revocation ledger.
	ErrTokenRevoked = errors.New("auth: token revoked")

	// ErrIdentityUnverified rejects external identities whose email the
	// provider has not verified.
	ErrIdentityUnverified = errors.New("auth: identity email unverified")

	// ErrLedgerUnavailable wraps revocation store failures. Callers fail
	// closed: the request is rejected, never allowed through.
	ErrLedgerUnavailable = errors.New("auth: revocation ledger unavailable")
)
