package domain

import (
	"testing"
	"time"

	"github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/shared/types"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type fixture struct {
	agencyA types.ID
	agencyB types.ID
	staff1  types.ID
	staff2  types.ID
	admin   auth.Actor
	super   auth.Actor
}

func newFixture() fixture {
	f := fixture{
		agencyA: types.NewID(),
		agencyB: types.NewID(),
		staff1:  types.NewID(),
		staff2:  types.NewID(),
	}
	f.admin = auth.Actor{ID: types.NewID(), Name: "Ada Admin", Role: auth.RoleAgencyAdmin, AgencyID: f.agencyA}
	f.super = auth.Actor{ID: types.NewID(), Name: "Sam Super", Role: auth.RoleSuperAdmin}
	return f
}

func (f fixture) staffActor(id types.ID) auth.Actor {
	return auth.Actor{ID: id, Name: "Staff", Role: auth.RoleStaff, AgencyID: f.agencyA}
}

func (f fixture) staffTarget(id types.ID) StaffTarget {
	return StaffTarget{ID: id, AgencyID: f.agencyA, Active: true}
}

func newTestComplaint(t *testing.T, f fixture) *Complaint {
	t.Helper()
	c, err := NewComplaint(NewComplaintParams{
		Subject:      "Pothole on Main Street",
		Description:  "There is a large pothole in front of number 12.",
		CitizenName:  "Jane Citizen",
		CitizenEmail: "jane@example.com",
		CategoryID:   types.NewID(),
		AgencyID:     f.agencyA,
	}, t0)
	if err != nil {
		t.Fatalf("Failed to create complaint: %v", err)
	}
	return c
}
