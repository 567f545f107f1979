package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
)

var (
	_ auth.IdentityStore = (*Store)(nil)
	_ auth.GrantStore    = (*Store)(nil)
)

// Upsert creates the identity on first login and refreshes profile fields on
// subsequent logins. Identities are never deleted by this subsystem.
func (s *Store) Upsert(ctx context.Context, identity auth.Identity) (auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into identities (subject_id, email, email_verified, name, picture, created_at, updated_at)
		values ($1, $2, $3, $4, $5, now(), now())
		on conflict (subject_id) do update
		set email = excluded.email,
		    email_verified = excluded.email_verified,
		    name = excluded.name,
		    picture = excluded.picture,
		    updated_at = now()
		returning subject_id, email, email_verified, name, picture, created_at, updated_at
	`, identity.SubjectID, identity.Email, identity.EmailVerified, identity.Name, identity.Picture)

	var out auth.Identity
	if err := row.Scan(&out.SubjectID, &out.Email, &out.EmailVerified, &out.Name, &out.Picture, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return auth.Identity{}, fmt.Errorf("upsert identity: %w", err)
	}
	return out, nil
}

// Find returns the stored identity for the subject id.
func (s *Store) Find(ctx context.Context, subjectID string) (auth.Identity, error) {
	var out auth.Identity
	err := s.db.QueryRowContext(ctx, `
		select subject_id, email, email_verified, name, picture, created_at, updated_at
		from identities
		where subject_id = $1
	`, subjectID).Scan(&out.SubjectID, &out.Email, &out.EmailVerified, &out.Name, &out.Picture, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Identity{}, err
	}
	return out, nil
}

// GrantsFor reads the current grant set. This is always a fresh read; grant
// sets are never cached between requests.
func (s *Store) GrantsFor(ctx context.Context, subjectID string) ([]auth.RoleGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role, coalesce(context_id, ''), granted_at, coalesce(granted_by, '')
		from role_grants
		where subject_id = $1
		order by granted_at
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []auth.RoleGrant
	for rows.Next() {
		var (
			raw   string
			grant auth.RoleGrant
		)
		if err := rows.Scan(&raw, &grant.ContextID, &grant.GrantedAt, &grant.GrantedBy); err != nil {
			return nil, err
		}
		role, err := auth.ParseRole(raw)
		if err != nil {
			return nil, fmt.Errorf("grant for %s: %w", subjectID, err)
		}
		grant.Role = role
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// Grant inserts a role grant. (subject, role, context) is unique; a
// duplicate grant is a no-op.
func (s *Store) Grant(ctx context.Context, subjectID string, grant auth.RoleGrant) error {
	if !grant.Role.Valid() {
		return fmt.Errorf("%w: role %q", auth.ErrInvalidInput, grant.Role)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into role_grants (subject_id, role, context_id, granted_at, granted_by)
		values ($1, $2, nullif($3, ''), now(), nullif($4, ''))
		on conflict do nothing
	`, subjectID, string(grant.Role), grant.ContextID, grant.GrantedBy)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil
		}
		return err
	}
	return nil
}

// RevokeGrant removes a role grant.
func (s *Store) RevokeGrant(ctx context.Context, subjectID string, role auth.Role, contextID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from role_grants
		where subject_id = $1 and role = $2 and context_id is not distinct from nullif($3, '')
	`, subjectID, string(role), contextID)
	return err
}
