package pg

import (
	"context"
	"time"

	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
)

var _ auth.RevocationLedger = (*Store)(nil)

// Add inserts a revocation entry. Idempotent by token id: re-revoking an
// already-revoked token is a no-op, not an error.
func (s *Store) Add(ctx context.Context, entry auth.RevocationEntry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens (token_id, subject_id, expires_at, revoked_at, reason)
		values ($1, nullif($2, ''), $3, $4, $5)
		on conflict (token_id) do nothing
	`, entry.TokenID, entry.SubjectID, entry.ExpiresAt, entry.RevokedAt, entry.Reason)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil
		}
		return err
	}
	return nil
}

// IsRevoked reports whether the token id is in the ledger. Errors surface to
// the caller, which fails closed.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from revoked_tokens where token_id = $1)
	`, tokenID).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// CleanupExpired removes entries whose recorded expiry has passed. The
// comparison is strict: an entry is never removed before its expiry.
func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from revoked_tokens where expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
