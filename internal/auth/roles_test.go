package auth

import (
	"testing"

	"github.com/civic-complaints/platform/internal/shared/types"
)

// TestParseRole tests role claim parsing
func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"SUPER_ADMIN", RoleSuperAdmin, false},
		{"agency_admin", RoleAgencyAdmin, false},
		{"agency-admin", RoleAgencyAdmin, false},
		{" staff ", RoleStaff, false},
		{"citizen", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestCapabilityTable tests the default permissions per role
func TestCapabilityTable(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleSuperAdmin, PermComplaintTransfer, true},
		{RoleAgencyAdmin, PermComplaintAssign, true},
		{RoleAgencyAdmin, PermComplaintTransfer, true},
		{RoleStaff, PermComplaintUpdateStatus, true},
		{RoleStaff, PermComplaintAssign, false},
		{RoleStaff, PermComplaintTransfer, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestActorGrants tests per-user permission grants
func TestActorGrants(t *testing.T) {
	staff := Actor{ID: types.NewID(), Role: RoleStaff, AgencyID: types.NewID()}
	if staff.Can(PermComplaintAssign) {
		t.Error("Staff should not assign without a grant")
	}

	staff.Grants = []Permission{PermComplaintAssign}
	if !staff.Can(PermComplaintAssign) {
		t.Error("Staff with grant should assign")
	}
	if staff.Scope(PermComplaintAssign) != ScopeAgency {
		t.Errorf("Expected agency scope for granted assign, got %s", staff.Scope(PermComplaintAssign))
	}

	// Only grantable permissions can be added.
	staff.Grants = append(staff.Grants, Permission("complaint:delete"))
	if staff.Can(Permission("complaint:delete")) {
		t.Error("Non-grantable permission must be ignored")
	}
}

// TestActorReaches tests agency and assignment scoping
func TestActorReaches(t *testing.T) {
	agencyA := types.NewID()
	agencyB := types.NewID()
	staffID := types.NewID()
	otherStaff := types.NewID()

	super := Actor{ID: types.NewID(), Role: RoleSuperAdmin}
	admin := Actor{ID: types.NewID(), Role: RoleAgencyAdmin, AgencyID: agencyA}
	staff := Actor{ID: staffID, Role: RoleStaff, AgencyID: agencyA}

	tests := []struct {
		name     string
		actor    Actor
		perm     Permission
		agency   types.ID
		assignee types.ID
		want     bool
	}{
		{"super admin any agency", super, PermComplaintTransfer, agencyB, "", true},
		{"agency admin own agency", admin, PermComplaintAssign, agencyA, "", true},
		{"agency admin other agency", admin, PermComplaintAssign, agencyB, "", false},
		{"staff assigned to self", staff, PermComplaintUpdateStatus, agencyA, staffID, true},
		{"staff assigned to other", staff, PermComplaintUpdateStatus, agencyA, otherStaff, false},
		{"staff unassigned", staff, PermComplaintUpdateStatus, agencyA, "", false},
		{"staff cannot transfer", staff, PermComplaintTransfer, agencyA, staffID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.actor.Reaches(tt.perm, tt.agency, tt.assignee); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestActorValidate tests actor consistency checks
func TestActorValidate(t *testing.T) {
	if err := (Actor{ID: types.NewID(), Role: RoleSuperAdmin}).Validate(); err != nil {
		t.Errorf("Super admin without agency should be valid: %v", err)
	}
	if err := (Actor{ID: types.NewID(), Role: RoleStaff}).Validate(); err == nil {
		t.Error("Staff without agency should be invalid")
	}
	if err := (Actor{Role: RoleStaff, AgencyID: types.NewID()}).Validate(); err == nil {
		t.Error("Actor without id should be invalid")
	}
}
