package auth

import "context"

// IdentityStore persists platform identities keyed by external subject id.
type IdentityStore interface {
	// Upsert creates the identity on first login and refreshes the mutable
	// profile fields on subsequent logins.
	Upsert(ctx context.Context, identity Identity) (Identity, error)
	Find(ctx context.Context, subjectID string) (Identity, error)
}

// GrantStore reads and writes role grants. Reads during authentication and
// refresh must hit the store; grant sets are never cached across requests.
type GrantStore interface {
	GrantsFor(ctx context.Context, subjectID string) ([]RoleGrant, error)
	Grant(ctx context.Context, subjectID string, grant RoleGrant) error
	RevokeGrant(ctx context.Context, subjectID string, role Role, contextID string) error
}

// IdentityVerifier is the external identity provider boundary: it turns a
// raw provider token into a verified identity claim. Implementations live
// outside this package.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawToken string) (ExternalIdentity, error)
}
