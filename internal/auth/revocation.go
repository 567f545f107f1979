package auth

import (
	"context"
	"time"
)

// RevocationEntry records a token identifier that must be rejected even
// though the token itself still verifies. Entries are never mutated; only
// expiry-driven cleanup removes them.
type RevocationEntry struct {
	TokenID   string
	SubjectID string
	ExpiresAt time.Time
	RevokedAt time.Time
	Reason    string
}

// RevocationLedger is the durable, shared record of revoked token
// identifiers. It must be reachable by every execution context; an
// in-process map is not an implementation of this interface.
type RevocationLedger interface {
	// Add inserts an entry. A duplicate add for an already-revoked token id
	// is a no-op, not an error.
	Add(ctx context.Context, entry RevocationEntry) error

	// IsRevoked reports whether the token id is in the ledger. Read failures
	// must be surfaced so callers can fail closed.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// CleanupExpired removes entries whose recorded expiry has passed and
	// returns the number removed. Safe to run concurrently with adds.
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}
