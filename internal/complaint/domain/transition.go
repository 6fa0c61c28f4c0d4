package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// Action is a change requested on a complaint
type Action string

const (
	ActionAssign       Action = "ASSIGN"
	ActionUpdateStatus Action = "UPDATE_STATUS"
	ActionTransfer     Action = "TRANSFER"
)

const maxReasonLength = 1000

// State is the part of a complaint that transition rules depend on
type State struct {
	Status     Status
	AgencyID   types.ID
	AssignedTo types.ID
}

// StaffTarget is the staff member a complaint is being assigned to
type StaffTarget struct {
	ID       types.ID
	AgencyID types.ID
	Active   bool
}

// AgencyTarget is the agency a complaint is being transferred to
type AgencyTarget struct {
	ID     types.ID
	Active bool
}

// Request describes one requested action. Only the fields of its Action are
// read: Staff for ASSIGN, Status for UPDATE_STATUS, Agency for TRANSFER.
// Reason is the optional status note or the required transfer reason.
type Request struct {
	Action Action
	Staff  *StaffTarget
	Status Status
	Agency *AgencyTarget
	Reason string
}

// Outcome is an accepted transition: the state to persist and the history
// entry to append.
type Outcome struct {
	Next   State
	Detail HistoryDetail
}

// requiredPermission maps actions to the capability they need.
var requiredPermission = map[Action]auth.Permission{
	ActionAssign:       auth.PermComplaintAssign,
	ActionUpdateStatus: auth.PermComplaintUpdateStatus,
	ActionTransfer:     auth.PermComplaintTransfer,
}

// ValidateTransition decides whether actor may apply req to a complaint in
// state current. Terminal complaints reject every action before anything
// else is checked.
func ValidateTransition(current State, req Request, actor auth.Actor) (Outcome, error) {
	perm, ok := requiredPermission[req.Action]
	if !ok {
		return Outcome{}, errors.Validation("unknown action", map[string]string{"action": string(req.Action)})
	}

	if current.Status.IsTerminal() {
		return Outcome{}, errors.InvalidTransition(
			"complaint is "+current.Status.DisplayName()+" and can no longer be changed",
			map[string]string{"status": string(current.Status), "action": string(req.Action)},
		)
	}

	if !actor.Can(perm) {
		return Outcome{}, errors.Forbidden("role " + string(actor.Role) + " may not " + actionVerb(req.Action))
	}
	if !actor.Reaches(perm, current.AgencyID, current.AssignedTo) {
		return Outcome{}, errors.Forbidden("complaint is outside your scope")
	}

	reason := strings.TrimSpace(req.Reason)
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return Outcome{}, errors.Validation("reason is too long", map[string]string{"reason": "too long"})
	}

	switch req.Action {
	case ActionAssign:
		return validateAssign(current, req.Staff)
	case ActionUpdateStatus:
		return validateStatusUpdate(current, req.Status, reason)
	default:
		return validateTransfer(current, req.Agency, reason)
	}
}

func validateAssign(current State, staff *StaffTarget) (Outcome, error) {
	if staff == nil || staff.ID.IsZero() {
		return Outcome{}, errors.Validation("staff member is required", map[string]string{"staff_id": "required"})
	}
	if staff.AgencyID != current.AgencyID {
		return Outcome{}, errors.InvalidTarget("staff member does not belong to the owning agency",
			map[string]string{"staff_id": staff.ID.String()})
	}
	if !staff.Active {
		return Outcome{}, errors.InvalidTarget("staff member is inactive",
			map[string]string{"staff_id": staff.ID.String()})
	}
	if staff.ID == current.AssignedTo {
		return Outcome{}, errors.InvalidTarget("complaint is already assigned to this staff member",
			map[string]string{"staff_id": staff.ID.String()})
	}

	next := current
	next.AssignedTo = staff.ID

	if current.AssignedTo.IsZero() {
		return Outcome{Next: next, Detail: Assigned{AgencyID: current.AgencyID, ToUserID: staff.ID}}, nil
	}
	return Outcome{Next: next, Detail: Reassigned{
		FromAgencyID: current.AgencyID,
		ToAgencyID:   current.AgencyID,
		FromUserID:   current.AssignedTo,
		ToUserID:     staff.ID,
	}}, nil
}

func validateStatusUpdate(current State, status Status, note string) (Outcome, error) {
	if !status.IsKnown() {
		return Outcome{}, errors.Validation("unknown status", map[string]string{"status": string(status)})
	}
	if status == current.Status {
		return Outcome{}, errors.InvalidTransition("complaint is already "+status.DisplayName(),
			map[string]string{"status": string(status)})
	}
	if status == StatusPending {
		return Outcome{}, errors.InvalidTransition("complaint cannot return to Pending",
			map[string]string{"status": string(status)})
	}

	next := current
	next.Status = status
	return Outcome{Next: next, Detail: StatusChanged{
		AgencyID: current.AgencyID,
		From:     current.Status,
		To:       status,
		Note:     note,
	}}, nil
}

func validateTransfer(current State, target *AgencyTarget, reason string) (Outcome, error) {
	if target == nil || target.ID.IsZero() {
		return Outcome{}, errors.Validation("target agency is required", map[string]string{"target_agency_id": "required"})
	}
	if target.ID == current.AgencyID {
		return Outcome{}, errors.InvalidTarget("complaint already belongs to this agency",
			map[string]string{"target_agency_id": target.ID.String()})
	}
	if reason == "" {
		return Outcome{}, errors.Validation("transfer reason is required", map[string]string{"reason": "required"})
	}
	if !target.Active {
		return Outcome{}, errors.InvalidTarget("target agency is inactive",
			map[string]string{"target_agency_id": target.ID.String()})
	}

	next := State{
		Status:   current.Status,
		AgencyID: target.ID,
	}
	return Outcome{Next: next, Detail: Transferred{
		FromAgencyID: current.AgencyID,
		ToAgencyID:   target.ID,
		FromUserID:   current.AssignedTo,
		Reason:       reason,
	}}, nil
}

func actionVerb(a Action) string {
	switch a {
	case ActionAssign:
		return "assign complaints"
	case ActionUpdateStatus:
		return "update complaint status"
	case ActionTransfer:
		return "transfer complaints"
	}
	return strings.ToLower(string(a))
}
