package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of platform roles. Parsing is the only way to turn
// external input into a Role, so an unknown value surfaces at the boundary
// instead of leaking into checks.
type Role string

const (
	RoleMasterAdmin  Role = "MASTER_ADMIN"
	RolePartnerAdmin Role = "PARTNER_ADMIN"
	RoleDriver       Role = "DRIVER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMasterAdmin, RolePartnerAdmin, RoleDriver:
		return true
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

// Identity is the stable platform identity created on first verified login
// and refreshed on subsequent logins. It is never deleted by this subsystem.
type Identity struct {
	SubjectID     string    `json:"subject_id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name,omitempty"`
	Picture       string    `json:"picture,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RoleGrant binds a role to a subject, optionally scoped to a tenant context
// (a partner id). An empty ContextID means the grant is global.
// (subject, role, context) is unique in the store.
type RoleGrant struct {
	Role      Role      `json:"role"`
	ContextID string    `json:"context_id,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
	GrantedBy string    `json:"granted_by,omitempty"`
}

// ExternalIdentity is the already-verified claim produced by the external
// identity provider. Verification itself is a collaborator concern.
type ExternalIdentity struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// DeviceContext carries client signals recorded (not enforced) at login.
type DeviceContext struct {
	Fingerprint string
	Timezone    string
	ClientIP    string
	UserAgent   string
}
