package auth

// Role and tenant-context resolution over the grant set embedded in session
// claims. MASTER_ADMIN implicitly satisfies every role and context check.

// HasRole reports whether the claims carry the required role.
func (c *Claims) HasRole(required Role) bool {
	if c == nil || !required.Valid() {
		return false
	}
	for _, g := range c.Grants {
		if g.Role == RoleMasterAdmin || g.Role == required {
			return true
		}
	}
	return false
}

// HasContext reports whether any grant is scoped to the given tenant context.
func (c *Claims) HasContext(contextID string) bool {
	if c == nil || contextID == "" {
		return false
	}
	for _, g := range c.Grants {
		if g.Role == RoleMasterAdmin {
			return true
		}
		if g.ContextID == contextID {
			return true
		}
	}
	return false
}

// IsMasterAdmin reports whether the claims carry a MASTER_ADMIN grant.
// Callers use it to distinguish "unscoped, all tenants" from the absence of
// any tenant context.
func (c *Claims) IsMasterAdmin() bool {
	return c.HasRole(RoleMasterAdmin)
}

// ResolveTenantContext returns the first non-empty context id among the
// grants. ok is false when no grant is tenant-scoped; for a MASTER_ADMIN
// that means "unscoped, all tenants", which callers must check separately
// via IsMasterAdmin.
func (c *Claims) ResolveTenantContext() (string, bool) {
	if c == nil {
		return "", false
	}
	for _, g := range c.Grants {
		if g.ContextID != "" {
			return g.ContextID, true
		}
	}
	return "", false
}
