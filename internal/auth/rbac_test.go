package auth

import "testing"

func claimsWithGrants(grants ...RoleGrant) *Claims {
	return &Claims{Grants: grants}
}

func TestMasterAdminSatisfiesEverything(t *testing.T) {
	claims := claimsWithGrants(RoleGrant{Role: RoleMasterAdmin})

	for _, role := range []Role{RoleMasterAdmin, RolePartnerAdmin, RoleDriver} {
		if !claims.HasRole(role) {
			t.Fatalf("MASTER_ADMIN should satisfy role %s", role)
		}
	}
	for _, ctx := range []string{"partner_abc", "partner_xyz"} {
		if !claims.HasContext(ctx) {
			t.Fatalf("MASTER_ADMIN should satisfy context %s", ctx)
		}
	}
	if !claims.IsMasterAdmin() {
		t.Fatal("IsMasterAdmin should be true")
	}
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *Claims
		role   Role
		want   bool
	}{
		{"matching role", claimsWithGrants(RoleGrant{Role: RoleDriver}), RoleDriver, true},
		{"missing role", claimsWithGrants(RoleGrant{Role: RoleDriver}), RolePartnerAdmin, false},
		{"no grants", claimsWithGrants(), RoleDriver, false},
		{"invalid required role", claimsWithGrants(RoleGrant{Role: RoleDriver}), Role("SUPERUSER"), false},
		{"nil claims", nil, RoleDriver, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.claims.HasRole(tt.role); got != tt.want {
				t.Fatalf("HasRole(%s) = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestHasContextScopedGrant(t *testing.T) {
	claims := claimsWithGrants(RoleGrant{Role: RolePartnerAdmin, ContextID: "p1"})

	if !claims.HasContext("p1") {
		t.Fatal("grant scoped to p1 should satisfy p1")
	}
	if claims.HasContext("p2") {
		t.Fatal("grant scoped to p1 must not satisfy p2")
	}
	if claims.HasContext("") {
		t.Fatal("empty required context is never satisfied")
	}
}

func TestResolveTenantContext(t *testing.T) {
	claims := claimsWithGrants(
		RoleGrant{Role: RoleDriver},
		RoleGrant{Role: RolePartnerAdmin, ContextID: "partner_abc"},
		RoleGrant{Role: RoleDriver, ContextID: "partner_xyz"},
	)
	ctx, ok := claims.ResolveTenantContext()
	if !ok || ctx != "partner_abc" {
		t.Fatalf("expected first non-empty context partner_abc, got %q ok=%v", ctx, ok)
	}

	// An unscoped MASTER_ADMIN has no tenant context but is distinguishable
	// from an unauthenticated gap through IsMasterAdmin.
	admin := claimsWithGrants(RoleGrant{Role: RoleMasterAdmin})
	ctx, ok = admin.ResolveTenantContext()
	if ok || ctx != "" {
		t.Fatalf("unscoped admin should resolve to no context, got %q ok=%v", ctx, ok)
	}
	if !admin.IsMasterAdmin() {
		t.Fatal("unscoped admin must still be recognizable as master admin")
	}
}

func TestParseRole(t *testing.T) {
	if role, err := ParseRole(" driver "); err != nil || role != RoleDriver {
		t.Fatalf("ParseRole(driver) = %v, %v", role, err)
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if Role("").Valid() {
		t.Fatal("empty role must not be valid")
	}
}
