// Package auth provides the role and permission model for complaint handling.
package auth

import (
	"fmt"
	"strings"

	"github.com/civic-complaints/platform/internal/shared/types"
)

// Role represents a user role in the system. The set is closed: every
// authenticated actor is exactly one of these.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"  // All agencies
	RoleAgencyAdmin Role = "AGENCY_ADMIN" // Own agency
	RoleStaff       Role = "STAFF"        // Complaints assigned to self
)

// ParseRole parses a role claim, accepting lower case and dashes.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	switch r {
	case RoleSuperAdmin, RoleAgencyAdmin, RoleStaff:
		return r, nil
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// Permission represents a specific action on a resource.
type Permission string

// Complaint permissions
const (
	PermComplaintRead         Permission = "complaint:read"
	PermComplaintAssign       Permission = "complaint:assign"
	PermComplaintUpdateStatus Permission = "complaint:update_status"
	PermComplaintTransfer     Permission = "complaint:transfer"
	PermComplaintStats        Permission = "complaint:stats"
)

// Directory permissions
const (
	PermStaffRead Permission = "staff:read"
)

// RolePermissions maps roles to their default permissions.
var RolePermissions = map[Role][]Permission{
	RoleSuperAdmin: {
		PermComplaintRead, PermComplaintAssign, PermComplaintUpdateStatus,
		PermComplaintTransfer, PermComplaintStats, PermStaffRead,
	},
	RoleAgencyAdmin: {
		PermComplaintRead, PermComplaintAssign, PermComplaintUpdateStatus,
		PermComplaintTransfer, PermComplaintStats, PermStaffRead,
	},
	RoleStaff: {
		PermComplaintRead, PermComplaintUpdateStatus, PermComplaintStats,
	},
}

// GrantablePermissions may be added to an individual STAFF user on top of
// the role defaults.
var GrantablePermissions = []Permission{
	PermComplaintAssign, PermComplaintTransfer, PermStaffRead,
}

// Scope is the set of complaints a permission reaches.
type Scope int

const (
	ScopeNone     Scope = iota
	ScopeAssigned       // complaints assigned to the actor
	ScopeAgency         // complaints owned by the actor's agency
	ScopeAll            // every complaint
)

func (s Scope) String() string {
	switch s {
	case ScopeAssigned:
		return "assigned"
	case ScopeAgency:
		return "agency"
	case ScopeAll:
		return "all"
	}
	return "none"
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Actor is the authenticated user a complaint operation runs on behalf of.
type Actor struct {
	ID       types.ID
	Name     string
	Role     Role
	AgencyID types.ID
	// Grants are extra permissions given to this user individually.
	Grants []Permission
}

// Can reports whether the actor holds perm through its role or a grant.
// Grants outside GrantablePermissions are ignored.
func (a Actor) Can(perm Permission) bool {
	if HasPermission(a.Role, perm) {
		return true
	}
	if !isGrantable(perm) {
		return false
	}
	for _, g := range a.Grants {
		if g == perm {
			return true
		}
	}
	return false
}

// Scope returns which complaints perm reaches for this actor.
func (a Actor) Scope(perm Permission) Scope {
	if !a.Can(perm) {
		return ScopeNone
	}
	switch a.Role {
	case RoleSuperAdmin:
		return ScopeAll
	case RoleAgencyAdmin:
		return ScopeAgency
	case RoleStaff:
		if HasPermission(RoleStaff, perm) {
			return ScopeAssigned
		}
		// Granted management permissions act on the whole agency queue.
		return ScopeAgency
	}
	return ScopeNone
}

// Reaches reports whether perm lets the actor act on a complaint owned by
// agencyID and assigned to assignee.
func (a Actor) Reaches(perm Permission, agencyID, assignee types.ID) bool {
	switch a.Scope(perm) {
	case ScopeAll:
		return true
	case ScopeAgency:
		return !a.AgencyID.IsZero() && a.AgencyID == agencyID
	case ScopeAssigned:
		return !a.AgencyID.IsZero() && a.AgencyID == agencyID && !assignee.IsZero() && assignee == a.ID
	}
	return false
}

// Validate checks the actor is internally consistent.
func (a Actor) Validate() error {
	if a.ID.IsZero() {
		return fmt.Errorf("actor id is required")
	}
	if _, err := ParseRole(string(a.Role)); err != nil {
		return err
	}
	if a.Role != RoleSuperAdmin && a.AgencyID.IsZero() {
		return fmt.Errorf("role %s requires an agency", a.Role)
	}
	return nil
}

func isGrantable(perm Permission) bool {
	for _, p := range GrantablePermissions {
		if p == perm {
			return true
		}
	}
	return false
}
