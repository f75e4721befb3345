package domain

import "testing"

func TestRoleValid(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleManager, RoleAdmin} {
		if !role.Valid() {
			t.Fatalf("role %q should be valid", role)
		}
	}
	for _, role := range []Role{"", "owner", "ADMIN"} {
		if role.Valid() {
			t.Fatalf("role %q should be invalid", role)
		}
	}
}

func TestRoleStaff(t *testing.T) {
	if RoleUser.Staff() {
		t.Fatalf("plain users are not staff")
	}
	if !RoleManager.Staff() || !RoleAdmin.Staff() {
		t.Fatalf("managers and admins are staff")
	}
}
